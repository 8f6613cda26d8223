// Package forms binds and validates user input for posts, comments and
// accounts. Field errors are keyed by the HTML form field name.
package forms

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"yatube/internal/media"
	"yatube/internal/models"
)

const (
	MaxCommentLen  = 200
	MaxUsernameLen = 150
	MinPasswordLen = 6
)

// ReservedUsernames collide with top-level routes and cannot be registered.
var ReservedUsernames = map[string]bool{
	"new": true, "follow": true, "group": true, "auth": true,
	"static": true, "media": true, "metrics": true, "admin": true,
}

var usernameRe = regexp.MustCompile(`^[\w.@+-]+$`)

// Errors maps a form field name to its message.
type Errors map[string]string

func (e Errors) Valid() bool { return len(e) == 0 }

func (e Errors) Get(field string) string { return e[field] }

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := f.Tag.Get("form")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return usernameRe.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("notreserved", func(fl validator.FieldLevel) bool {
		return !ReservedUsernames[strings.ToLower(fl.Field().String())]
	})
	return v
}

func check(s any) Errors {
	errs := Errors{}
	var ves validator.ValidationErrors
	if err := validate.Struct(s); errors.As(err, &ves) {
		for _, fe := range ves {
			if _, seen := errs[fe.Field()]; !seen {
				errs[fe.Field()] = message(fe)
			}
		}
	}
	return errs
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "Обязательное поле."
	case "max":
		return fmt.Sprintf("Убедитесь, что это значение содержит не более %s символов.", fe.Param())
	case "min":
		return fmt.Sprintf("Убедитесь, что это значение содержит не менее %s символов.", fe.Param())
	case "email":
		return "Введите правильный адрес электронной почты."
	case "username":
		return "Допустимы только буквы, цифры и символы @/./+/-/_."
	case "notreserved":
		return "Это имя пользователя недоступно."
	case "eqfield":
		return "Пароли не совпадают."
	default:
		return "Некорректное значение."
	}
}

// Post -------------------------------------------------------------------------

// PostForm is the create/edit form of a post.
type PostForm struct {
	Text       string `form:"text" validate:"required"`
	GroupID    int64  `form:"group" validate:"gte=0"`
	ClearImage bool   `form:"-"`
	Image      *media.Image
	Errors     Errors `form:"-"`

	upload io.Closer
}

// PostFormFrom prefills the edit form with an existing post.
func PostFormFrom(p models.Post) *PostForm {
	f := &PostForm{Text: p.Text, Errors: Errors{}}
	if p.GroupID != nil {
		f.GroupID = *p.GroupID
	}
	return f
}

// BindPost reads a post submission. Both urlencoded and multipart bodies are
// accepted; maxUpload bounds the multipart body size. A file that is not an
// image is reported as a field error rather than a failure.
func BindPost(w http.ResponseWriter, r *http.Request, maxUpload int64) *PostForm {
	f := &PostForm{Errors: Errors{}}

	if isMultipart(r) {
		r.Body = http.MaxBytesReader(w, r.Body, maxUpload)
		if err := r.ParseMultipartForm(maxUpload); err != nil {
			f.Errors["image"] = "Файл слишком большой или повреждён."
			return f
		}
	} else if err := r.ParseForm(); err != nil {
		f.Errors["text"] = "Не удалось прочитать форму."
		return f
	}

	f.Text = strings.TrimSpace(r.FormValue("text"))
	if g := strings.TrimSpace(r.FormValue("group")); g != "" {
		id, err := strconv.ParseInt(g, 10, 64)
		if err != nil || id < 0 {
			f.Errors["group"] = "Выберите корректный вариант."
		} else {
			f.GroupID = id
		}
	}
	f.ClearImage = r.FormValue("image-clear") != ""

	if r.MultipartForm != nil {
		file, _, err := r.FormFile("image")
		switch {
		case errors.Is(err, http.ErrMissingFile):
		case err != nil:
			f.Errors["image"] = "Не удалось прочитать файл."
		default:
			img, err := media.Detect(file)
			if err != nil {
				_ = file.Close()
				f.Errors["image"] = "Загрузите правильное изображение. Файл, который вы загрузили, поврежден или не является изображением."
			} else {
				f.Image = &img
				f.upload = file
			}
		}
	}
	return f
}

// Close releases the uploaded file once its Image has been saved or dropped.
func (f *PostForm) Close() error {
	if f.upload == nil {
		return nil
	}
	err := f.upload.Close()
	f.upload = nil
	return err
}

// Validate checks the form against the groups a post may be tagged with.
func (f *PostForm) Validate(groups []models.Group) bool {
	for field, msg := range check(f) {
		if _, seen := f.Errors[field]; !seen {
			f.Errors[field] = msg
		}
	}
	if f.GroupID != 0 {
		known := false
		for _, g := range groups {
			if g.ID == f.GroupID {
				known = true
				break
			}
		}
		if !known {
			f.Errors["group"] = "Выберите корректный вариант. Вашего варианта нет среди допустимых значений."
		}
	}
	return f.Errors.Valid()
}

// Group returns the selected group as a nullable reference.
func (f *PostForm) Group() *int64 {
	if f.GroupID == 0 {
		return nil
	}
	id := f.GroupID
	return &id
}

// Comment ----------------------------------------------------------------------

type CommentForm struct {
	Text   string `form:"text" validate:"required,max=200"`
	Errors Errors `form:"-"`
}

func BindComment(r *http.Request) *CommentForm {
	return &CommentForm{Text: strings.TrimSpace(r.FormValue("text")), Errors: Errors{}}
}

func (f *CommentForm) Validate() bool {
	f.Errors = check(f)
	return f.Errors.Valid()
}

// Accounts ---------------------------------------------------------------------

type SignupForm struct {
	Username string `form:"username" validate:"required,max=150,username,notreserved"`
	Email    string `form:"email" validate:"required,email"`
	Password string `form:"password" validate:"required,min=6"`
	Confirm  string `form:"confirm" validate:"eqfield=Password"`
	Errors   Errors `form:"-"`
}

func BindSignup(r *http.Request) *SignupForm {
	return &SignupForm{
		Username: strings.TrimSpace(r.FormValue("username")),
		Email:    strings.TrimSpace(strings.ToLower(r.FormValue("email"))),
		Password: r.FormValue("password"),
		Confirm:  r.FormValue("confirm"),
		Errors:   Errors{},
	}
}

func (f *SignupForm) Validate() bool {
	f.Errors = check(f)
	return f.Errors.Valid()
}

type LoginForm struct {
	Username string `form:"username" validate:"required"`
	Password string `form:"password" validate:"required"`
	Next     string `form:"-"`
	Errors   Errors `form:"-"`
}

func BindLogin(r *http.Request) *LoginForm {
	return &LoginForm{
		Username: strings.TrimSpace(r.FormValue("username")),
		Password: r.FormValue("password"),
		Next:     r.FormValue("next"),
		Errors:   Errors{},
	}
}

func (f *LoginForm) Validate() bool {
	f.Errors = check(f)
	return f.Errors.Valid()
}

func isMultipart(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data")
}
