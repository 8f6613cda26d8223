package httpx

import (
	"errors"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"yatube/internal/auth"
	"yatube/internal/forms"
	"yatube/internal/models"
)

func (s *Server) setSessionCookie(w http.ResponseWriter, sess models.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    sess.ID,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.Cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
		Expires:  sess.ExpiresAt,
	})
}

// ---------------------------------------------------------------------------------
// ------------HandleSignup Function------------------------------------------------

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	data := s.newPage(r)
	if r.Method != http.MethodPost {
		data.SignupForm = &forms.SignupForm{Errors: forms.Errors{}}
		s.render(w, r, http.StatusOK, "signup.html", data)
		return
	}

	form := forms.BindSignup(r)
	data.SignupForm = form
	if !form.Validate() {
		s.render(w, r, http.StatusOK, "signup.html", data)
		return
	}

	ctx := r.Context()
	_, err := s.Auth.Register(ctx, form.Username, form.Email, form.Password)
	switch {
	case errors.Is(err, auth.ErrUsernameTaken):
		form.Errors["username"] = "Пользователь с таким именем уже существует."
	case errors.Is(err, auth.ErrEmailTaken):
		form.Errors["email"] = "Пользователь с таким адресом электронной почты уже существует."
	case err != nil:
		s.serverError(w, r, err)
		return
	}
	if !form.Errors.Valid() {
		s.render(w, r, http.StatusOK, "signup.html", data)
		return
	}
	s.Metrics.Signup()

	sess, err := s.Auth.Login(ctx, form.Username, form.Password)
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	s.setSessionCookie(w, sess)
	http.Redirect(w, r, "/", http.StatusFound)
}

// ---------------------------------------------------------------------------------
// ------------HandleLogin Function-------------------------------------------------

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	data := s.newPage(r)
	if r.Method != http.MethodPost {
		data.LoginForm = &forms.LoginForm{Next: r.URL.Query().Get("next"), Errors: forms.Errors{}}
		s.render(w, r, http.StatusOK, "login.html", data)
		return
	}

	form := forms.BindLogin(r)
	data.LoginForm = form
	if !form.Validate() {
		s.render(w, r, http.StatusOK, "login.html", data)
		return
	}

	sess, err := s.Auth.Login(r.Context(), form.Username, form.Password)
	if errors.Is(err, auth.ErrInvalidLogin) {
		s.Metrics.Login(false)
		s.Log.WithFields(logrus.Fields{"username": form.Username, "client": clientIP(r)}).Info("login failed")
		form.Errors["form"] = "Пожалуйста, введите правильные имя пользователя и пароль."
		s.render(w, r, http.StatusOK, "login.html", data)
		return
	}
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	s.Metrics.Login(true)
	s.setSessionCookie(w, sess)
	http.Redirect(w, r, safeNext(form.Next), http.StatusFound)
}

// ---------------------------------------------------------------------------------
// ------------HandleLogout Function------------------------------------------------

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(CookieName); err == nil {
		if err := s.Auth.Logout(r.Context(), c.Value); err != nil {
			s.Log.WithError(err).Warn("logout")
		}
		http.SetCookie(w, &http.Cookie{
			Name:     CookieName,
			Value:    "",
			Path:     "/",
			HttpOnly: true,
			MaxAge:   -1,
			Expires:  time.Unix(0, 0),
		})
	}
	http.Redirect(w, r, "/", http.StatusFound)
}
