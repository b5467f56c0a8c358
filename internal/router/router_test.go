package router

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"yatube/internal/model"
	"yatube/internal/pkg"
	"yatube/internal/repository/redis"
	"yatube/internal/service"
	"yatube/internal/testutil"
)

type testApp struct {
	t      *testing.T
	engine *gin.Engine
	db     *gorm.DB
	users  *service.UserService
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := testutil.NewDB(t)
	rdb, _ := testutil.NewRedis(t)
	log := zap.NewNop()
	media := t.TempDir()

	issuer := pkg.NewTokenIssuer("access-secret", "refresh-secret", time.Minute, time.Hour)
	users := service.NewUserService(db, redis.NewTokenRepository(rdb, time.Minute), issuer, nil, nil, log)
	engine := InitRouter(Deps{
		Feed:      service.NewFeedService(db, nil, log),
		Posts:     service.NewPostService(db, pkg.NewMediaStore(media, 0), nil, log),
		Comments:  service.NewCommentService(db),
		Groups:    service.NewGroupService(db, nil, log),
		Follows:   service.NewFollowService(db, nil, log),
		Users:     users,
		Log:       log,
		LoginURL:  "/auth/login/",
		MediaRoot: media,
		CookieTTL: time.Minute,
	})
	return &testApp{t: t, engine: engine, db: db, users: users}
}

// signup 注册并登录，返回 access token
func (a *testApp) signup(username string) (*model.User, string) {
	a.t.Helper()
	ctx := context.Background()
	user, err := a.users.Register(ctx, username, username+"@example.com", "long-enough")
	require.NoError(a.t, err)
	pair, err := a.users.Login(ctx, username, "long-enough")
	require.NoError(a.t, err)
	return user, pair.AccessToken
}

func (a *testApp) admin(username string) string {
	a.t.Helper()
	user, _ := a.signup(username)
	require.NoError(a.t, a.db.Model(user).Update("role", model.RoleAdmin).Error)
	pair, err := a.users.Login(context.Background(), username, "long-enough")
	require.NoError(a.t, err)
	return pair.AccessToken
}

func (a *testApp) do(method, path, token string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	a.t.Helper()
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.engine.ServeHTTP(w, req)
	return w
}

func (a *testApp) get(path, token string) *httptest.ResponseRecorder {
	return a.do(http.MethodGet, path, token, nil, "")
}

func (a *testApp) postForm(path, token string, form url.Values) *httptest.ResponseRecorder {
	return a.do(http.MethodPost, path, token, bytes.NewBufferString(form.Encode()), "application/x-www-form-urlencoded")
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func pageItems(t *testing.T, w *httptest.ResponseRecorder) []any {
	t.Helper()
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	items, ok := decode(t, w)["page"].([]any)
	require.True(t, ok)
	return items
}

func (a *testApp) lastPost() model.Post {
	a.t.Helper()
	var p model.Post
	require.NoError(a.t, a.db.Order("id DESC").First(&p).Error)
	return p
}

func TestIndexPaginator(t *testing.T) {
	app := newTestApp(t)

	w := app.get("/?page=abc", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	paginator := body["paginator"].(map[string]any)
	assert.EqualValues(t, 1, paginator["number"])
	assert.EqualValues(t, 1, paginator["num_pages"])
	assert.Equal(t, false, paginator["has_next"])
	assert.Empty(t, body["page"])
}

func TestNotFound(t *testing.T) {
	app := newTestApp(t)

	w := app.get("/x/y/z/w/", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "/x/y/z/w/", decode(t, w)["path"])

	w = app.get("/group/missing/", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "/group/missing/", decode(t, w)["path"])

	w = app.get("/nobody/", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreatePostRequiresLogin(t *testing.T) {
	app := newTestApp(t)

	w := app.postForm("/new/", "", url.Values{"text": {"hello"}})
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/auth/login/?next=%2Fnew%2F", w.Header().Get("Location"))

	var n int64
	require.NoError(t, app.db.Model(&model.Post{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestCreatePostAppearsEverywhere(t *testing.T) {
	app := newTestApp(t)
	_, token := app.signup("leo")
	group := testutil.CreateGroup(t, app.db, "slug-x")

	w := app.postForm("/new/", token, url.Values{"text": {"hello"}, "group": {"1"}})
	require.Equal(t, http.StatusFound, w.Code, w.Body.String())
	assert.Equal(t, "/", w.Header().Get("Location"))

	for _, path := range []string{"/", "/group/slug-x/", "/leo/"} {
		items := pageItems(t, app.get(path, ""))
		require.Len(t, items, 1, path)
		post := items[0].(map[string]any)
		assert.Equal(t, "hello", post["Text"])
		assert.EqualValues(t, group.ID, post["Group"].(map[string]any)["ID"])
	}

	post := app.lastPost()
	w = app.get(postURLFor("leo", post.ID), "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "leo", body["author"].(map[string]any)["Username"])
	assert.Empty(t, body["comments"])

	w = app.get(postURLFor("someone", post.ID), "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreatePostValidation(t *testing.T) {
	app := newTestApp(t)
	_, token := app.signup("leo")

	w := app.postForm("/new/", token, url.Values{"text": {""}, "group": {"42"}})
	require.Equal(t, http.StatusBadRequest, w.Code)
	form := decode(t, w)["form"].(map[string]any)
	errs := form["errors"].(map[string]any)
	assert.Equal(t, service.MsgRequired, errs["text"])
	assert.Equal(t, service.MsgInvalidChoice, errs["group"])
}

func TestCreatePostWithImage(t *testing.T) {
	app := newTestApp(t)
	_, token := app.signup("leo")

	var img bytes.Buffer
	require.NoError(t, png.Encode(&img, image.NewRGBA(image.Rect(0, 0, 2, 2))))

	body, contentType := multipartBody(t, "with image", img.Bytes())
	w := app.do(http.MethodPost, "/new/", token, body, contentType)
	require.Equal(t, http.StatusFound, w.Code, w.Body.String())
	post := app.lastPost()
	assert.True(t, strings.HasPrefix(post.Image, "posts/"))
	assert.Equal(t, http.StatusOK, app.get("/media/"+post.Image, "").Code)

	body, contentType = multipartBody(t, "broken image", []byte("plain text"))
	w = app.do(http.MethodPost, "/new/", token, body, contentType)
	require.Equal(t, http.StatusBadRequest, w.Code)
	errs := decode(t, w)["form"].(map[string]any)["errors"].(map[string]any)
	assert.Equal(t, pkg.ErrInvalidImage.Error(), errs["image"])
}

func TestEditPostByNonAuthorRedirects(t *testing.T) {
	app := newTestApp(t)
	_, authorToken := app.signup("leo")
	_, otherToken := app.signup("kim")

	require.Equal(t, http.StatusFound, app.postForm("/new/", authorToken, url.Values{"text": {"original"}}).Code)
	post := app.lastPost()
	edit := postURLFor("leo", post.ID) + "edit/"

	w := app.postForm(edit, otherToken, url.Values{"text": {"hacked"}})
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, postURLFor("leo", post.ID), w.Header().Get("Location"))
	assert.Equal(t, "original", app.lastPost().Text)

	w = app.get(edit, otherToken)
	assert.Equal(t, http.StatusFound, w.Code)

	w = app.get(edit, authorToken)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["is_edit"])

	w = app.postForm(edit, authorToken, url.Values{"text": {"edited"}})
	assert.Equal(t, http.StatusFound, w.Code)
	edited := app.lastPost()
	assert.Equal(t, "edited", edited.Text)
	assert.True(t, edited.PubDate.Equal(post.PubDate))
}

func TestCommentFlow(t *testing.T) {
	app := newTestApp(t)
	_, authorToken := app.signup("leo")
	_, readerToken := app.signup("kim")
	require.Equal(t, http.StatusFound, app.postForm("/new/", authorToken, url.Values{"text": {"post"}}).Code)
	post := app.lastPost()
	commentURL := postURLFor("leo", post.ID) + "comment"

	w := app.postForm(commentURL, "", url.Values{"text": {"anonymous"}})
	assert.Equal(t, http.StatusFound, w.Code)
	assert.True(t, strings.HasPrefix(w.Header().Get("Location"), "/auth/login/?next="))
	var n int64
	require.NoError(t, app.db.Model(&model.Comment{}).Count(&n).Error)
	assert.Zero(t, n)

	w = app.postForm(commentURL, readerToken, url.Values{"text": {"nice"}})
	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, postURLFor("leo", post.ID), w.Header().Get("Location"))

	comments := decode(t, app.get(postURLFor("leo", post.ID), ""))["comments"].([]any)
	require.Len(t, comments, 1)
	c := comments[0].(map[string]any)
	assert.Equal(t, "nice", c["Text"])
	assert.Equal(t, "kim", c["Author"].(map[string]any)["Username"])
}

func TestFollowFlow(t *testing.T) {
	app := newTestApp(t)
	_, aToken := app.signup("writer")
	_, bToken := app.signup("b")
	_, cToken := app.signup("c")
	require.Equal(t, http.StatusFound, app.postForm("/new/", aToken, url.Values{"text": {"from writer"}}).Code)

	w := app.get("/writer/follow/", bToken)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/writer/", w.Header().Get("Location"))
	require.Equal(t, http.StatusFound, app.get("/writer/follow/", bToken).Code)

	assert.Len(t, pageItems(t, app.get("/follow/", bToken)), 1)
	assert.Empty(t, pageItems(t, app.get("/follow/", cToken)))

	profile := decode(t, app.get("/writer/", bToken))
	assert.Equal(t, true, profile["following"])
	assert.EqualValues(t, 1, profile["follower_count"])
	assert.EqualValues(t, 1, profile["posts_count"])

	followers := decode(t, app.get("/writer/followers/", ""))["list"].([]any)
	assert.Len(t, followers, 1)

	w = app.get("/writer/follow/", aToken)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	require.Equal(t, http.StatusFound, app.get("/writer/unfollow/", bToken).Code)
	require.Equal(t, http.StatusFound, app.get("/writer/unfollow/", bToken).Code)
	assert.Empty(t, pageItems(t, app.get("/follow/", bToken)))

	w = app.get("/follow/", "")
	assert.Equal(t, http.StatusFound, w.Code)
}

func TestLoginWithNextSetsCookie(t *testing.T) {
	app := newTestApp(t)
	_, err := app.users.Register(context.Background(), "leo", "", "long-enough")
	require.NoError(t, err)

	w := app.postForm("/auth/login/?next=/follow/", "", url.Values{"username": {"leo"}, "password": {"long-enough"}})
	require.Equal(t, http.StatusFound, w.Code, w.Body.String())
	assert.Equal(t, "/follow/", w.Header().Get("Location"))

	var cookie *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == "access_token" {
			cookie = c
		}
	}
	require.NotNil(t, cookie)

	req := httptest.NewRequest(http.MethodGet, "/follow/", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	app.engine.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	w = app.postForm("/auth/login/", "", url.Values{"username": {"leo"}, "password": {"wrong-pass"}})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSignupAndPasswordChange(t *testing.T) {
	app := newTestApp(t)

	w := app.postForm("/auth/signup/", "", url.Values{"username": {"leo"}, "password": {"long-enough"}})
	require.Equal(t, http.StatusFound, w.Code, w.Body.String())
	assert.Equal(t, "/auth/login/", w.Header().Get("Location"))

	w = app.postForm("/auth/signup/", "", url.Values{"username": {"leo"}, "password": {"long-enough"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = app.postForm("/auth/login/", "", url.Values{"username": {"leo"}, "password": {"long-enough"}})
	require.Equal(t, http.StatusOK, w.Code)
	token := decode(t, w)["access_token"].(string)

	w = app.postForm("/auth/token/refresh/", "", url.Values{"refresh_token": {"garbage"}})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = app.postForm("/auth/token/refresh/", "", url.Values{"refresh_token": {token}})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = app.postForm("/auth/password_change/", token, url.Values{"old_password": {"long-enough"}, "new_password": {"brand-new-pass"}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// 旧 token 已失效，按匿名处理
	w = app.get("/follow/", token)
	assert.Equal(t, http.StatusFound, w.Code)
}

func TestAdminGroupManagement(t *testing.T) {
	app := newTestApp(t)
	adminToken := app.admin("root")
	_, userToken := app.signup("leo")

	w := app.do(http.MethodPost, "/admin/groups/", userToken, bytes.NewBufferString(`{"title":"X","slug":"slug-x"}`), "application/json")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = app.do(http.MethodPost, "/admin/groups/", adminToken, bytes.NewBufferString(`{"title":"X","slug":"slug-x"}`), "application/json")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	require.Equal(t, http.StatusFound, app.postForm("/new/", userToken, url.Values{"text": {"p"}, "group": {"1"}}).Code)

	w = app.do(http.MethodDelete, "/admin/groups/slug-x/", adminToken, nil, "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, http.StatusOK, app.get("/group/slug-x/", "").Code)

	post := app.lastPost()
	w = app.do(http.MethodDelete, "/admin/posts/"+uintToString(post.ID)+"/", adminToken, nil, "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = app.do(http.MethodDelete, "/admin/groups/slug-x/", adminToken, nil, "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, http.StatusNotFound, app.get("/group/slug-x/", "").Code)

	w = app.do(http.MethodDelete, "/admin/users/leo/", adminToken, nil, "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, http.StatusNotFound, app.get("/leo/", "").Code)
}

func multipartBody(t *testing.T, text string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("text", text))
	fw, err := mw.CreateFormFile("image", "small.png")
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func postURLFor(username string, id uint64) string {
	return "/" + username + "/" + uintToString(id) + "/"
}

func uintToString(id uint64) string {
	return strconv.FormatUint(id, 10)
}
