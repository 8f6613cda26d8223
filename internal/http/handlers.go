package httpx

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"yatube/internal/auth"
	"yatube/internal/forms"
	"yatube/internal/models"
	"yatube/internal/paging"
	"yatube/internal/store"
)

// pageData is the single view model handed to every template.
type pageData struct {
	User *models.User
	Path string

	Posts        []models.Post
	Page         *paging.Page
	CommentTotal int
	Group        *models.Group

	Author         *models.User
	PostCount      int
	Followers      int
	FollowingCount int
	IsFollowing    bool

	Post        *models.Post
	Comments    []models.Comment
	CommentForm *forms.CommentForm

	PostForm *forms.PostForm
	Groups   []models.Group
	Editing  bool

	LoginForm  *forms.LoginForm
	SignupForm *forms.SignupForm
}

func (s *Server) newPage(r *http.Request) pageData {
	d := pageData{Path: r.URL.Path}
	if u, ok := auth.UserFrom(r.Context()); ok {
		d.User = &u
	}
	return d
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, data pageData) {
	if err := s.views.Render(w, status, name, data); err != nil {
		s.serverError(w, r, fmt.Errorf("render %s: %w", name, err))
	}
}

// ---------------------------------------------------------------------------------
// ------------Error pages----------------------------------------------------------

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	if err := s.views.Render(w, http.StatusNotFound, "404.html", s.newPage(r)); err != nil {
		s.Log.WithError(err).Error("render 404")
		http.NotFound(w, r)
	}
}

func (s *Server) serverError(w http.ResponseWriter, r *http.Request, err error) {
	s.Log.WithError(err).WithFields(logrus.Fields{"method": r.Method, "path": r.URL.Path}).Error("request failed")
	if rerr := s.views.Render(w, http.StatusInternalServerError, "500.html", s.newPage(r)); rerr != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

// fail maps store lookups that found nothing to 404 and anything else to 500.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, store.ErrNotFound) {
		s.handleNotFound(w, r)
		return
	}
	s.serverError(w, r, err)
}

// ---------------------------------------------------------------------------------
// ------------Listings-------------------------------------------------------------

// listPage counts the posts matching q, resolves the requested page number
// and loads that page.
func (s *Server) listPage(ctx context.Context, q store.PostQuery, perPage int, raw string) ([]models.Post, paging.Page, error) {
	count, err := s.Store.CountPosts(ctx, q)
	if err != nil {
		return nil, paging.Page{}, fmt.Errorf("count posts: %w", err)
	}
	page := paging.New(count, perPage, raw)
	q.Limit, q.Offset = page.Limit(), page.Offset()
	posts, err := s.Store.ListPosts(ctx, q)
	if err != nil {
		return nil, paging.Page{}, fmt.Errorf("list posts: %w", err)
	}
	return posts, page, nil
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	posts, page, err := s.listPage(ctx, store.PostQuery{}, indexPerPage, r.URL.Query().Get("page"))
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	total, err := s.Store.CountComments(ctx)
	if err != nil {
		s.serverError(w, r, fmt.Errorf("count comments: %w", err))
		return
	}

	data := s.newPage(r)
	data.Posts = posts
	data.Page = &page
	data.CommentTotal = total
	s.render(w, r, http.StatusOK, "index.html", data)
}

func (s *Server) handleGroup(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	g, err := s.Store.GetGroupBySlug(ctx, mux.Vars(r)["slug"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	posts, err := s.Store.ListPosts(ctx, store.PostQuery{GroupID: g.ID, Limit: groupPostLimit})
	if err != nil {
		s.serverError(w, r, fmt.Errorf("list group posts: %w", err))
		return
	}

	data := s.newPage(r)
	data.Group = &g
	data.Posts = posts
	s.render(w, r, http.StatusOK, "group.html", data)
}

func (s *Server) handleFollowIndex(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	uid, _ := auth.UserIDFrom(ctx)
	posts, page, err := s.listPage(ctx, store.PostQuery{FollowerID: uid}, followPerPage, r.URL.Query().Get("page"))
	if err != nil {
		s.serverError(w, r, err)
		return
	}

	data := s.newPage(r)
	data.Posts = posts
	data.Page = &page
	s.render(w, r, http.StatusOK, "follow.html", data)
}

// ---------------------------------------------------------------------------------
// ------------Profile and post view------------------------------------------------

// fillAuthor loads the sidebar numbers shown next to an author's posts.
func (s *Server) fillAuthor(ctx context.Context, data *pageData, author models.User) error {
	var err error
	data.Author = &author
	if data.PostCount, err = s.Store.CountPosts(ctx, store.PostQuery{AuthorID: author.ID}); err != nil {
		return fmt.Errorf("count posts: %w", err)
	}
	if data.Followers, err = s.Store.CountFollowers(ctx, author.ID); err != nil {
		return fmt.Errorf("count followers: %w", err)
	}
	if data.FollowingCount, err = s.Store.CountFollowing(ctx, author.ID); err != nil {
		return fmt.Errorf("count following: %w", err)
	}
	return nil
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	author, err := s.Store.GetUserByUsername(ctx, mux.Vars(r)["username"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	posts, page, err := s.listPage(ctx, store.PostQuery{AuthorID: author.ID}, profilePerPage, r.URL.Query().Get("page"))
	if err != nil {
		s.serverError(w, r, err)
		return
	}

	data := s.newPage(r)
	data.Posts = posts
	data.Page = &page
	if err := s.fillAuthor(ctx, &data, author); err != nil {
		s.serverError(w, r, err)
		return
	}
	if data.User != nil && data.User.ID != author.ID {
		if data.IsFollowing, err = s.Store.IsFollowing(ctx, data.User.ID, author.ID); err != nil {
			s.serverError(w, r, fmt.Errorf("is following: %w", err))
			return
		}
	}
	s.render(w, r, http.StatusOK, "profile.html", data)
}

// loadPost resolves /{username}/{post_id}/; a post that exists under another
// author is reported as not found.
func (s *Server) loadPost(ctx context.Context, r *http.Request) (models.User, models.Post, error) {
	vars := mux.Vars(r)
	author, err := s.Store.GetUserByUsername(ctx, vars["username"])
	if err != nil {
		return models.User{}, models.Post{}, err
	}
	id, err := strconv.ParseInt(vars["post_id"], 10, 64)
	if err != nil {
		return models.User{}, models.Post{}, fmt.Errorf("post id %q: %w", vars["post_id"], store.ErrNotFound)
	}
	p, err := s.Store.GetPost(ctx, id)
	if err != nil {
		return models.User{}, models.Post{}, err
	}
	if p.AuthorID != author.ID {
		return models.User{}, models.Post{}, fmt.Errorf("post %d by %s: %w", id, author.Username, store.ErrNotFound)
	}
	return author, p, nil
}

func postURL(p models.Post) string {
	return "/" + p.Author + "/" + strconv.FormatInt(p.ID, 10) + "/"
}

func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	author, p, err := s.loadPost(ctx, r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var form *forms.CommentForm
	if _, ok := auth.UserFrom(ctx); ok {
		form = &forms.CommentForm{Errors: forms.Errors{}}
	}
	s.renderPost(ctx, w, r, author, p, form)
}

func (s *Server) renderPost(ctx context.Context, w http.ResponseWriter, r *http.Request, author models.User, p models.Post, form *forms.CommentForm) {
	comments, err := s.Store.ListComments(ctx, p.ID)
	if err != nil {
		s.serverError(w, r, fmt.Errorf("list comments: %w", err))
		return
	}
	data := s.newPage(r)
	data.Post = &p
	data.Comments = comments
	data.CommentForm = form
	if err := s.fillAuthor(ctx, &data, author); err != nil {
		s.serverError(w, r, err)
		return
	}
	s.render(w, r, http.StatusOK, "post.html", data)
}

// ---------------------------------------------------------------------------------
// ------------Writing posts--------------------------------------------------------

func (s *Server) handlePostNew(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	groups, err := s.Store.ListGroups(ctx)
	if err != nil {
		s.serverError(w, r, fmt.Errorf("list groups: %w", err))
		return
	}
	data := s.newPage(r)
	data.Groups = groups

	if r.Method != http.MethodPost {
		data.PostForm = &forms.PostForm{Errors: forms.Errors{}}
		s.render(w, r, http.StatusOK, "new.html", data)
		return
	}

	form := forms.BindPost(w, r, s.Cfg.MaxUploadBytes())
	defer form.Close()
	if !form.Validate(groups) {
		data.PostForm = form
		s.render(w, r, http.StatusOK, "new.html", data)
		return
	}

	var key string
	if form.Image != nil {
		if key, err = s.Media.Save(ctx, *form.Image); err != nil {
			s.serverError(w, r, fmt.Errorf("save image: %w", err))
			return
		}
	}
	p, err := s.Store.CreatePost(ctx, models.Post{
		Text:     form.Text,
		AuthorID: data.User.ID,
		GroupID:  form.Group(),
		Image:    key,
	})
	if err != nil {
		s.dropImage(ctx, key)
		s.serverError(w, r, fmt.Errorf("create post: %w", err))
		return
	}

	s.Metrics.PostCreated()
	s.Log.WithFields(logrus.Fields{"uid": data.User.ID, "post": p.ID}).Info("post created")
	http.Redirect(w, r, "/", http.StatusFound)
}

func (s *Server) handlePostEdit(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	_, p, err := s.loadPost(ctx, r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	data := s.newPage(r)
	if data.User.ID != p.AuthorID {
		http.Redirect(w, r, postURL(p), http.StatusFound)
		return
	}
	groups, err := s.Store.ListGroups(ctx)
	if err != nil {
		s.serverError(w, r, fmt.Errorf("list groups: %w", err))
		return
	}
	data.Groups = groups
	data.Post = &p
	data.Editing = true

	if r.Method != http.MethodPost {
		data.PostForm = forms.PostFormFrom(p)
		s.render(w, r, http.StatusOK, "new.html", data)
		return
	}

	form := forms.BindPost(w, r, s.Cfg.MaxUploadBytes())
	defer form.Close()
	if !form.Validate(groups) {
		data.PostForm = form
		s.render(w, r, http.StatusOK, "new.html", data)
		return
	}

	oldKey, newKey := p.Image, p.Image
	switch {
	case form.Image != nil:
		if newKey, err = s.Media.Save(ctx, *form.Image); err != nil {
			s.serverError(w, r, fmt.Errorf("save image: %w", err))
			return
		}
	case form.ClearImage:
		newKey = ""
	}

	p.Text = form.Text
	p.GroupID = form.Group()
	p.Image = newKey
	updated, err := s.Store.UpdatePost(ctx, p)
	if err != nil {
		if newKey != oldKey {
			s.dropImage(ctx, newKey)
		}
		s.fail(w, r, fmt.Errorf("update post: %w", err))
		return
	}
	if oldKey != newKey {
		s.dropImage(ctx, oldKey)
	}

	s.Metrics.PostEdited()
	s.Log.WithFields(logrus.Fields{"uid": data.User.ID, "post": p.ID}).Info("post edited")
	http.Redirect(w, r, postURL(updated), http.StatusFound)
}

// dropImage removes a stored image; failures only leave an orphaned file.
func (s *Server) dropImage(ctx context.Context, key string) {
	if key == "" {
		return
	}
	if err := s.Media.Delete(ctx, key); err != nil {
		s.Log.WithError(err).WithField("key", key).Warn("delete image")
	}
}

// ---------------------------------------------------------------------------------
// ------------Comments-------------------------------------------------------------

func (s *Server) handleAddComment(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	author, p, err := s.loadPost(ctx, r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	form := forms.BindComment(r)
	if !form.Validate() {
		s.renderPost(ctx, w, r, author, p, form)
		return
	}

	uid, _ := auth.UserIDFrom(ctx)
	if _, err := s.Store.CreateComment(ctx, models.Comment{PostID: p.ID, AuthorID: uid, Text: form.Text}); err != nil {
		s.fail(w, r, fmt.Errorf("create comment: %w", err))
		return
	}
	s.Metrics.CommentAdded()
	http.Redirect(w, r, postURL(p), http.StatusFound)
}

// ---------------------------------------------------------------------------------
// ------------Follows--------------------------------------------------------------

func (s *Server) handleFollow(w http.ResponseWriter, r *http.Request) {
	s.changeFollow(w, r, true)
}

func (s *Server) handleUnfollow(w http.ResponseWriter, r *http.Request) {
	s.changeFollow(w, r, false)
}

// changeFollow creates or removes the viewer's edge to the author. Following
// yourself is a no-op, as is removing an edge that does not exist.
func (s *Server) changeFollow(w http.ResponseWriter, r *http.Request, follow bool) {
	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	author, err := s.Store.GetUserByUsername(ctx, mux.Vars(r)["username"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	profile := "/" + author.Username + "/"
	uid, _ := auth.UserIDFrom(ctx)
	if uid == author.ID {
		http.Redirect(w, r, profile, http.StatusFound)
		return
	}

	var changed bool
	if follow {
		changed, err = s.Store.Follow(ctx, uid, author.ID)
	} else {
		changed, err = s.Store.Unfollow(ctx, uid, author.ID)
	}
	if err != nil {
		s.serverError(w, r, fmt.Errorf("change follow: %w", err))
		return
	}
	if changed {
		s.Metrics.FollowChanged(follow)
		s.Log.WithFields(logrus.Fields{"uid": uid, "author": author.ID, "follow": follow}).Info("follow changed")
	}
	http.Redirect(w, r, profile, http.StatusFound)
}
