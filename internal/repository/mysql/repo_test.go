package mysql_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"yatube/internal/model"
	"yatube/internal/repository/mysql"
	"yatube/internal/testutil"
)

func TestPostListOrderAndPaging(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	author := testutil.CreateUser(t, db, "leo")
	repo := &mysql.PostRepository{DB: db}

	for i := 0; i < 12; i++ {
		require.NoError(t, repo.Create(ctx, &model.Post{Text: "p", AuthorID: author.ID}))
	}
	last := &model.Post{Text: "newest", AuthorID: author.ID}
	require.NoError(t, repo.Create(ctx, last))

	list, total, err := repo.ListAll(ctx, 0, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 13, total)
	require.Len(t, list, 10)
	assert.Equal(t, last.ID, list[0].ID)
	assert.Equal(t, "leo", list[0].Author.Username)

	list, _, err = repo.ListAll(ctx, 10, 10)
	require.NoError(t, err)
	assert.Len(t, list, 3)

	list, total, err = repo.ListAll(ctx, 100, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 13, total)
	assert.Empty(t, list)
}

func TestPostCreateUnknownGroup(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	author := testutil.CreateUser(t, db, "leo")
	repo := &mysql.PostRepository{DB: db}

	missing := uint64(404)
	err := repo.Create(ctx, &model.Post{Text: "x", AuthorID: author.ID, GroupID: &missing})
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	var n int64
	require.NoError(t, db.Model(&model.Post{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestPostUpdateKeepsPubDateAndChecksAuthor(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	author := testutil.CreateUser(t, db, "leo")
	other := testutil.CreateUser(t, db, "mia")
	group := testutil.CreateGroup(t, db, "slug-x")
	repo := &mysql.PostRepository{DB: db}

	post := &model.Post{Text: "before", AuthorID: author.ID}
	require.NoError(t, repo.Create(ctx, post))
	created, err := repo.FindByID(ctx, post.ID)
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)
	affected, err := repo.Update(ctx, &model.Post{ID: post.ID, Text: "hijack"}, other.ID)
	require.NoError(t, err)
	assert.Zero(t, affected)

	affected, err = repo.Update(ctx, &model.Post{ID: post.ID, Text: "after", GroupID: &group.ID}, author.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, affected)

	got, err := repo.FindByID(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, "after", got.Text)
	require.NotNil(t, got.Group)
	assert.Equal(t, "slug-x", got.Group.Slug)
	assert.True(t, created.PubDate.Equal(got.PubDate))
}

func TestPostFindByAuthor(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	author := testutil.CreateUser(t, db, "leo")
	testutil.CreateUser(t, db, "mia")
	repo := &mysql.PostRepository{DB: db}

	post := &model.Post{Text: "hello", AuthorID: author.ID}
	require.NoError(t, repo.Create(ctx, post))

	got, err := repo.FindByAuthor(ctx, post.ID, "leo")
	require.NoError(t, err)
	assert.Equal(t, "hello", got.Text)

	_, err = repo.FindByAuthor(ctx, post.ID, "mia")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestGroupDeleteProtected(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	author := testutil.CreateUser(t, db, "leo")
	group := testutil.CreateGroup(t, db, "slug-x")
	empty := testutil.CreateGroup(t, db, "slug-empty")
	posts := &mysql.PostRepository{DB: db}
	groups := &mysql.GroupRepository{DB: db}

	require.NoError(t, posts.Create(ctx, &model.Post{Text: "x", AuthorID: author.ID, GroupID: &group.ID}))

	err := groups.Delete(ctx, group.ID)
	assert.ErrorIs(t, err, mysql.ErrGroupProtected)
	_, err = groups.FindBySlug(ctx, "slug-x")
	assert.NoError(t, err)

	require.NoError(t, groups.Delete(ctx, empty.ID))
	_, err = groups.FindBySlug(ctx, "slug-empty")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	// 已删除再删视为成功
	assert.NoError(t, groups.Delete(ctx, empty.ID))
}

func TestGroupSlugUnique(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	groups := &mysql.GroupRepository{DB: db}

	require.NoError(t, groups.Create(ctx, &model.Group{Title: "a", Slug: "dup"}))
	err := groups.Create(ctx, &model.Group{Title: "b", Slug: "dup"})
	assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)
}

func TestFollowIdempotent(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	u := testutil.CreateUser(t, db, "leo")
	a := testutil.CreateUser(t, db, "mia")
	repo := &mysql.FollowRepository{DB: db}

	first, created, err := repo.Follow(ctx, u.ID, a.ID)
	require.NoError(t, err)
	assert.True(t, created)

	second, created, err := repo.Follow(ctx, u.ID, a.ID)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	var author model.User
	require.NoError(t, db.First(&author, a.ID).Error)
	assert.EqualValues(t, 1, author.FollowerCount)

	var events int64
	require.NoError(t, db.Model(&model.SocialOutbox{}).Count(&events).Error)
	assert.EqualValues(t, 1, events)
}

func TestFollowConcurrent(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	u := testutil.CreateUser(t, db, "leo")
	a := testutil.CreateUser(t, db, "mia")
	repo := &mysql.FollowRepository{DB: db}

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, errs[i] = repo.Follow(ctx, u.ID, a.ID)
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestUnfollowMissingIsNoop(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	u := testutil.CreateUser(t, db, "leo")
	a := testutil.CreateUser(t, db, "mia")
	repo := &mysql.FollowRepository{DB: db}

	changed, err := repo.Unfollow(ctx, u.ID, a.ID)
	require.NoError(t, err)
	assert.False(t, changed)

	_, _, err = repo.Follow(ctx, u.ID, a.ID)
	require.NoError(t, err)
	changed, err = repo.Unfollow(ctx, u.ID, a.ID)
	require.NoError(t, err)
	assert.True(t, changed)

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	var user model.User
	require.NoError(t, db.First(&user, u.ID).Error)
	assert.Zero(t, user.FollowingCount)
}

func TestListFollowed(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	a := testutil.CreateUser(t, db, "author")
	b := testutil.CreateUser(t, db, "follower")
	c := testutil.CreateUser(t, db, "stranger")
	posts := &mysql.PostRepository{DB: db}
	follows := &mysql.FollowRepository{DB: db}

	require.NoError(t, posts.Create(ctx, &model.Post{Text: "by a", AuthorID: a.ID}))
	require.NoError(t, posts.Create(ctx, &model.Post{Text: "by c", AuthorID: c.ID}))
	_, _, err := follows.Follow(ctx, b.ID, a.ID)
	require.NoError(t, err)

	list, total, err := posts.ListFollowed(ctx, b.ID, 0, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, list, 1)
	assert.Equal(t, "by a", list[0].Text)

	list, total, err = posts.ListFollowed(ctx, c.ID, 0, 10)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, list)
}

func TestUserDeleteCascades(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	a := testutil.CreateUser(t, db, "author")
	b := testutil.CreateUser(t, db, "reader")
	posts := &mysql.PostRepository{DB: db}
	comments := &mysql.CommentRepository{DB: db}
	follows := &mysql.FollowRepository{DB: db}
	users := &mysql.UserRepository{DB: db}

	post := &model.Post{Text: "doomed", AuthorID: a.ID}
	require.NoError(t, posts.Create(ctx, post))
	keep := &model.Post{Text: "kept", AuthorID: b.ID}
	require.NoError(t, posts.Create(ctx, keep))
	require.NoError(t, comments.Create(ctx, &model.Comment{PostID: post.ID, AuthorID: b.ID, Text: "on doomed"}))
	require.NoError(t, comments.Create(ctx, &model.Comment{PostID: keep.ID, AuthorID: a.ID, Text: "by doomed"}))
	require.NoError(t, comments.Create(ctx, &model.Comment{PostID: keep.ID, AuthorID: b.ID, Text: "stays"}))
	_, _, err := follows.Follow(ctx, b.ID, a.ID)
	require.NoError(t, err)

	require.NoError(t, users.Delete(ctx, a.ID))

	var n int64
	require.NoError(t, db.Model(&model.Post{}).Count(&n).Error)
	assert.EqualValues(t, 1, n)
	left, err := comments.ListByPost(ctx, keep.ID)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "stays", left[0].Text)
	n, err = follows.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	var reader model.User
	require.NoError(t, db.First(&reader, b.ID).Error)
	assert.Zero(t, reader.FollowingCount)
}

func TestCommentsOldestFirst(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	a := testutil.CreateUser(t, db, "leo")
	posts := &mysql.PostRepository{DB: db}
	comments := &mysql.CommentRepository{DB: db}

	post := &model.Post{Text: "p", AuthorID: a.ID}
	require.NoError(t, posts.Create(ctx, post))
	for _, text := range []string{"first", "second", "third"} {
		require.NoError(t, comments.Create(ctx, &model.Comment{PostID: post.ID, AuthorID: a.ID, Text: text}))
	}

	list, err := comments.ListByPost(ctx, post.ID)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "first", list[0].Text)
	assert.Equal(t, "third", list[2].Text)
	assert.Equal(t, "leo", list[0].Author.Username)

	require.NoError(t, posts.Delete(ctx, post.ID))
	list, err = comments.ListByPost(ctx, post.ID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestReconcilerRepo(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	a := testutil.CreateUser(t, db, "a")
	b := testutil.CreateUser(t, db, "b")
	follows := &mysql.FollowRepository{DB: db}
	rec := &mysql.FollowCountReconcilerRepo{DB: db}

	_, _, err := follows.Follow(ctx, a.ID, b.ID)
	require.NoError(t, err)

	followers, err := rec.RealFollowers(ctx, b.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, followers)
	followings, err := rec.RealFollowings(ctx, a.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, followings)

	list, last, err := rec.ReconcileList(ctx, 10, 0)
	require.NoError(t, err)
	assert.Len(t, list, 2)
	assert.Equal(t, b.ID, last)
}
