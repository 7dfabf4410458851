package services

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"golang.org/x/crypto/bcrypt"

	"github.com/dmitrijs2005/contactkeeper/internal/common"
	"github.com/dmitrijs2005/contactkeeper/internal/config"
	"github.com/dmitrijs2005/contactkeeper/internal/dbx"
	"github.com/dmitrijs2005/contactkeeper/internal/models"
	contactsrepo "github.com/dmitrijs2005/contactkeeper/internal/repositories/contacts"
	refreshtokensrepo "github.com/dmitrijs2005/contactkeeper/internal/repositories/refreshtokens"
	usersrepo "github.com/dmitrijs2005/contactkeeper/internal/repositories/users"
)

// --- helpers ---

type errBoom struct{}

func (errBoom) Error() string { return "boom" }

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return db, mock
}

func testServiceConfig() *config.Config {
	return &config.Config{
		SecretKey:                    "k",
		AccessTokenValidityDuration:  time.Hour,
		RefreshTokenValidityDuration: 2 * time.Hour,
		QueryTimeout:                 time.Second,
	}
}

type fakeUsersRepo struct {
	createOut *models.User
	createErr error

	byEmailOut *models.User
	byEmailErr error

	byIDOut *models.User
	byIDErr error

	markVerifiedErr error
	verifiedID      string

	setPasswordErr  error
	setPasswordHash string

	updateAvatarErr error
	avatarRef       string

	setDisabledErr error
}

func (f *fakeUsersRepo) Create(ctx context.Context, u *models.User) (*models.User, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	return f.createOut, nil
}
func (f *fakeUsersRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if f.byEmailErr != nil {
		return nil, f.byEmailErr
	}
	if f.byEmailOut == nil {
		return nil, common.ErrorNotFound
	}
	return f.byEmailOut, nil
}
func (f *fakeUsersRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	if f.byIDErr != nil {
		return nil, f.byIDErr
	}
	if f.byIDOut == nil {
		return nil, common.ErrorNotFound
	}
	return f.byIDOut, nil
}
func (f *fakeUsersRepo) MarkVerified(ctx context.Context, id string) error {
	f.verifiedID = id
	return f.markVerifiedErr
}
func (f *fakeUsersRepo) SetPassword(ctx context.Context, id string, passwordHash string) error {
	f.setPasswordHash = passwordHash
	return f.setPasswordErr
}
func (f *fakeUsersRepo) UpdateAvatar(ctx context.Context, id string, avatarRef string) error {
	f.avatarRef = avatarRef
	return f.updateAvatarErr
}
func (f *fakeUsersRepo) SetDisabled(ctx context.Context, id string, disabled bool) error {
	return f.setDisabledErr
}

type fakeRefreshRepo struct {
	createErr error

	consumeOut *models.RefreshToken
	consumeErr error

	findOut *models.RefreshToken
	findErr error

	revokeErr    error
	revokedToken string

	revokeAllErr  error
	revokedAllFor string
}

func (f *fakeRefreshRepo) Create(ctx context.Context, userID string, token string, validity time.Duration) error {
	return f.createErr
}
func (f *fakeRefreshRepo) Consume(ctx context.Context, token string) (*models.RefreshToken, error) {
	if f.consumeErr != nil {
		return nil, f.consumeErr
	}
	return f.consumeOut, nil
}
func (f *fakeRefreshRepo) Find(ctx context.Context, token string) (*models.RefreshToken, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	return f.findOut, nil
}
func (f *fakeRefreshRepo) Revoke(ctx context.Context, token string) error {
	f.revokedToken = token
	return f.revokeErr
}
func (f *fakeRefreshRepo) RevokeAllForUser(ctx context.Context, userID string) error {
	f.revokedAllFor = userID
	return f.revokeAllErr
}

type fakeContactsRepo struct {
	createOut *models.Contact
	createErr error

	getOut *models.Contact
	getErr error

	updateOut *models.Contact
	updateErr error

	deleteErr error

	listOut []*models.Contact
	listErr error

	searchOut   []*models.Contact
	searchErr   error
	searchQuery string

	birthdaysOut  []*models.Contact
	birthdaysErr  error
	birthdaysDays int
}

func (f *fakeContactsRepo) Create(ctx context.Context, c *models.Contact) (*models.Contact, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	if f.createOut != nil {
		return f.createOut, nil
	}
	return c, nil
}
func (f *fakeContactsRepo) GetByID(ctx context.Context, ownerID, id string) (*models.Contact, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.getOut, nil
}
func (f *fakeContactsRepo) Update(ctx context.Context, ownerID, id string, patch *models.ContactPatch) (*models.Contact, error) {
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	return f.updateOut, nil
}
func (f *fakeContactsRepo) Delete(ctx context.Context, ownerID, id string) error {
	return f.deleteErr
}
func (f *fakeContactsRepo) List(ctx context.Context, ownerID string, offset, limit int) ([]*models.Contact, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.listOut, nil
}
func (f *fakeContactsRepo) Search(ctx context.Context, ownerID, query string) ([]*models.Contact, error) {
	f.searchQuery = query
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.searchOut, nil
}
func (f *fakeContactsRepo) UpcomingBirthdays(ctx context.Context, ownerID string, withinDays int) ([]*models.Contact, error) {
	f.birthdaysDays = withinDays
	if f.birthdaysErr != nil {
		return nil, f.birthdaysErr
	}
	return f.birthdaysOut, nil
}

type fakeRepoManager struct {
	u *fakeUsersRepo
	r *fakeRefreshRepo
	c *fakeContactsRepo
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error           { return nil }
func (m *fakeRepoManager) Users(db dbx.DBTX) usersrepo.Repository                 { return m.u }
func (m *fakeRepoManager) Contacts(db dbx.DBTX) contactsrepo.Repository           { return m.c }
func (m *fakeRepoManager) RefreshTokens(db dbx.DBTX) refreshtokensrepo.Repository { return m.r }

type fakeCache struct {
	users       map[string]*models.User
	invalidated []string
	setCount    int
}

func newFakeCache() *fakeCache {
	return &fakeCache{users: map[string]*models.User{}}
}
func (f *fakeCache) Get(ctx context.Context, userID string) (*models.User, bool) {
	u, ok := f.users[userID]
	return u, ok
}
func (f *fakeCache) Set(ctx context.Context, user *models.User) {
	f.setCount++
	f.users[user.ID] = user
}
func (f *fakeCache) Invalidate(ctx context.Context, userID string) {
	f.invalidated = append(f.invalidated, userID)
	delete(f.users, userID)
}

type fakeAvatarStore struct {
	storeRef string
	storeErr error
	gotData  []byte

	urlOut string
	urlErr error
	urlRef string
}

func (f *fakeAvatarStore) Store(ctx context.Context, data []byte, ownerID string) (string, error) {
	f.gotData = data
	if f.storeErr != nil {
		return "", f.storeErr
	}
	return f.storeRef, nil
}
func (f *fakeAvatarStore) URL(ctx context.Context, ref string) (string, error) {
	f.urlRef = ref
	if f.urlErr != nil {
		return "", f.urlErr
	}
	return f.urlOut, nil
}

func newUserService(t *testing.T, db *sql.DB, rm *fakeRepoManager) (*UserService, *fakeCache, *fakeAvatarStore) {
	t.Helper()
	fc := newFakeCache()
	fa := &fakeAvatarStore{}
	return NewUserService(db, rm, fa, fc, testServiceConfig()), fc, fa
}

func minCostHash(t *testing.T, password string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt error: %v", err)
	}
	return string(h)
}

// --- tests ---

func TestRegister_Success(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	rm := &fakeRepoManager{u: &fakeUsersRepo{createOut: &models.User{ID: "42", Email: "alice@x.com"}}}
	s, _, _ := newUserService(t, db, rm)

	u, err := s.Register(context.Background(), "alice@x.com", "password123")
	if err != nil || u.ID != "42" {
		t.Fatalf("Register: got (%v, %v)", u, err)
	}
}

func TestRegister_Validation(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	rm := &fakeRepoManager{u: &fakeUsersRepo{}}
	s, _, _ := newUserService(t, db, rm)

	_, err := s.Register(context.Background(), "not-an-email", "short")
	var ve *common.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("want ValidationError, got %v", err)
	}
	if len(ve.Fields) != 2 {
		t.Fatalf("want both fields flagged, got %v", ve.Fields)
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	rm := &fakeRepoManager{u: &fakeUsersRepo{createErr: common.ErrDuplicateEmail}}
	s, _, _ := newUserService(t, db, rm)

	_, err := s.Register(context.Background(), "alice@x.com", "password123")
	if !errors.Is(err, common.ErrDuplicateEmail) {
		t.Fatalf("want ErrDuplicateEmail, got %v", err)
	}
}

func TestVerify_Flows(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	hash := minCostHash(t, "password123")

	// unknown email → invalid credentials
	rmNF := &fakeRepoManager{u: &fakeUsersRepo{byEmailErr: common.ErrorNotFound}}
	sNF, _, _ := newUserService(t, db, rmNF)
	if _, err := sNF.Verify(context.Background(), "ghost@x.com", "password123"); !errors.Is(err, common.ErrInvalidCredentials) {
		t.Fatalf("unknown email: want ErrInvalidCredentials, got %v", err)
	}

	// wrong password → same error kind
	rmWP := &fakeRepoManager{u: &fakeUsersRepo{byEmailOut: &models.User{ID: "u1", PasswordHash: hash}}}
	sWP, _, _ := newUserService(t, db, rmWP)
	if _, err := sWP.Verify(context.Background(), "alice@x.com", "wrong-password"); !errors.Is(err, common.ErrInvalidCredentials) {
		t.Fatalf("wrong password: want ErrInvalidCredentials, got %v", err)
	}

	// disabled account → same error kind
	rmD := &fakeRepoManager{u: &fakeUsersRepo{byEmailOut: &models.User{ID: "u1", PasswordHash: hash, Disabled: true}}}
	sD, _, _ := newUserService(t, db, rmD)
	if _, err := sD.Verify(context.Background(), "alice@x.com", "password123"); !errors.Is(err, common.ErrInvalidCredentials) {
		t.Fatalf("disabled: want ErrInvalidCredentials, got %v", err)
	}

	// repo failure → internal
	rmIE := &fakeRepoManager{u: &fakeUsersRepo{byEmailErr: errBoom{}}}
	sIE, _, _ := newUserService(t, db, rmIE)
	if _, err := sIE.Verify(context.Background(), "alice@x.com", "password123"); !errors.Is(err, common.ErrorInternal) {
		t.Fatalf("repo error: want ErrorInternal, got %v", err)
	}

	// success
	rmOK := &fakeRepoManager{u: &fakeUsersRepo{byEmailOut: &models.User{ID: "u1", PasswordHash: hash}}}
	sOK, _, _ := newUserService(t, db, rmOK)
	u, err := sOK.Verify(context.Background(), "alice@x.com", "password123")
	if err != nil || u.ID != "u1" {
		t.Fatalf("success: got (%v, %v)", u, err)
	}
}

func TestLogin_Success(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	hash := minCostHash(t, "password123")
	rm := &fakeRepoManager{
		u: &fakeUsersRepo{byEmailOut: &models.User{ID: "u1", PasswordHash: hash}},
		r: &fakeRefreshRepo{},
	}
	s, _, _ := newUserService(t, db, rm)

	pair, err := s.Login(context.Background(), "alice@x.com", "password123")
	if err != nil || pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatalf("Login: pair=%+v err=%v", pair, err)
	}
	if len(pair.RefreshToken) != 64 {
		t.Fatalf("refresh token must be 64 hex chars, got %d", len(pair.RefreshToken))
	}
}

func TestRefresh_Success(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()
	mock.ExpectBegin()
	mock.ExpectCommit()

	rm := &fakeRepoManager{
		r: &fakeRefreshRepo{
			consumeOut: &models.RefreshToken{UserID: "u1", Expires: time.Now().Add(10 * time.Minute)},
		},
	}
	s, _, _ := newUserService(t, db, rm)

	pair, err := s.Refresh(context.Background(), "refresh-xyz")
	if err != nil {
		t.Fatalf("Refresh error: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatalf("empty tokens: %+v", pair)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("sql expectations: %v", err)
	}
}

func TestRefresh_Expired(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()
	mock.ExpectBegin()
	mock.ExpectRollback()

	rm := &fakeRepoManager{
		r: &fakeRefreshRepo{
			consumeOut: &models.RefreshToken{UserID: "u1", Expires: time.Now().Add(-1 * time.Minute)},
		},
	}
	s, _, _ := newUserService(t, db, rm)

	_, err := s.Refresh(context.Background(), "r")
	if !errors.Is(err, common.ErrTokenExpired) {
		t.Fatalf("want ErrTokenExpired, got %v", err)
	}
}

func TestRefresh_ReuseDetected(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()
	mock.ExpectBegin()
	mock.ExpectRollback()

	revokedAt := time.Now().Add(-1 * time.Hour)
	fr := &fakeRefreshRepo{
		consumeErr: common.ErrorNotFound,
		findOut:    &models.RefreshToken{UserID: "u1", Revoked: &revokedAt, Expires: time.Now().Add(time.Hour)},
	}
	rm := &fakeRepoManager{r: fr}
	s, _, _ := newUserService(t, db, rm)

	_, err := s.Refresh(context.Background(), "stolen-token")
	if !errors.Is(err, common.ErrTokenReuse) {
		t.Fatalf("want ErrTokenReuse, got %v", err)
	}
	if fr.revokedAllFor != "u1" {
		t.Fatalf("reuse must revoke all sessions of the user, got %q", fr.revokedAllFor)
	}
}

func TestRefresh_UnknownToken(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()
	mock.ExpectBegin()
	mock.ExpectRollback()

	rm := &fakeRepoManager{
		r: &fakeRefreshRepo{consumeErr: common.ErrorNotFound, findErr: common.ErrorNotFound},
	}
	s, _, _ := newUserService(t, db, rm)

	_, err := s.Refresh(context.Background(), "never-issued")
	if !errors.Is(err, common.ErrTokenInvalid) {
		t.Fatalf("want ErrTokenInvalid, got %v", err)
	}
}

func TestRefresh_ConsumeErr(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()
	mock.ExpectBegin()
	mock.ExpectRollback()

	rm := &fakeRepoManager{r: &fakeRefreshRepo{consumeErr: errBoom{}}}
	s, _, _ := newUserService(t, db, rm)

	_, err := s.Refresh(context.Background(), "r")
	if err == nil || !regexp.MustCompile(`error consuming refresh token: .*boom`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped consume error, got %v", err)
	}
}

func TestLogout_Idempotent(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	fr := &fakeRefreshRepo{}
	rm := &fakeRepoManager{r: fr}
	s, _, _ := newUserService(t, db, rm)

	if err := s.Logout(context.Background(), "some-token"); err != nil {
		t.Fatalf("Logout error: %v", err)
	}
	if fr.revokedToken != "some-token" {
		t.Fatalf("Revoke not called with token, got %q", fr.revokedToken)
	}
}

func TestChangePassword_KillsSessions(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()
	mock.ExpectBegin()
	mock.ExpectCommit()

	fu := &fakeUsersRepo{}
	fr := &fakeRefreshRepo{}
	rm := &fakeRepoManager{u: fu, r: fr}
	s, fc, _ := newUserService(t, db, rm)
	fc.users["u1"] = &models.User{ID: "u1"}

	if err := s.ChangePassword(context.Background(), "u1", "new-password-1"); err != nil {
		t.Fatalf("ChangePassword error: %v", err)
	}
	if fu.setPasswordHash == "" || fu.setPasswordHash == "new-password-1" {
		t.Fatalf("password must be stored hashed, got %q", fu.setPasswordHash)
	}
	if fr.revokedAllFor != "u1" {
		t.Fatalf("sessions not revoked, got %q", fr.revokedAllFor)
	}
	if _, ok := fc.users["u1"]; ok {
		t.Fatal("cache entry not invalidated")
	}
}

func TestChangePassword_TooShort(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	rm := &fakeRepoManager{u: &fakeUsersRepo{}, r: &fakeRefreshRepo{}}
	s, _, _ := newUserService(t, db, rm)

	err := s.ChangePassword(context.Background(), "u1", "short")
	var ve *common.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("want ValidationError, got %v", err)
	}
}

func TestConfirmEmail(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	fu := &fakeUsersRepo{}
	rm := &fakeRepoManager{u: fu}
	s, fc, _ := newUserService(t, db, rm)
	fc.users["u1"] = &models.User{ID: "u1"}

	if err := s.ConfirmEmail(context.Background(), "u1"); err != nil {
		t.Fatalf("ConfirmEmail error: %v", err)
	}
	if fu.verifiedID != "u1" {
		t.Fatalf("MarkVerified not called, got %q", fu.verifiedID)
	}
	if _, ok := fc.users["u1"]; ok {
		t.Fatal("cache entry not invalidated")
	}
}

func TestUploadAvatar_Success(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	fu := &fakeUsersRepo{}
	rm := &fakeRepoManager{u: fu}
	s, fc, fa := newUserService(t, db, rm)
	fc.users["u1"] = &models.User{ID: "u1"}
	fa.storeRef = "avatars/u1/new"
	fa.urlOut = "https://minio/avatars/u1/new?sig=abc"

	url, err := s.UploadAvatar(context.Background(), "u1", []byte("png-bytes"))
	if err != nil {
		t.Fatalf("UploadAvatar error: %v", err)
	}
	if fu.avatarRef != "avatars/u1/new" {
		t.Fatalf("avatar ref not recorded, got %q", fu.avatarRef)
	}
	if url != fa.urlOut {
		t.Fatalf("unexpected url: %q", url)
	}
	if _, ok := fc.users["u1"]; ok {
		t.Fatal("cache entry not invalidated")
	}
}

func TestUploadAvatar_EmptyData(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	rm := &fakeRepoManager{u: &fakeUsersRepo{}}
	s, _, _ := newUserService(t, db, rm)

	_, err := s.UploadAvatar(context.Background(), "u1", nil)
	var ve *common.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("want ValidationError, got %v", err)
	}
}

func TestCurrentUser_CacheHitAndMiss(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	fu := &fakeUsersRepo{byIDOut: &models.User{ID: "u1", Email: "a@x.com"}}
	rm := &fakeRepoManager{u: fu}
	s, fc, _ := newUserService(t, db, rm)

	// miss → loads from repo and populates cache
	u, err := s.CurrentUser(context.Background(), "u1")
	if err != nil || u.Email != "a@x.com" {
		t.Fatalf("miss: got (%v, %v)", u, err)
	}
	if fc.setCount != 1 {
		t.Fatalf("cache not populated, setCount=%d", fc.setCount)
	}

	// hit → repo not consulted
	fu.byIDErr = errBoom{}
	u2, err := s.CurrentUser(context.Background(), "u1")
	if err != nil || u2.Email != "a@x.com" {
		t.Fatalf("hit: got (%v, %v)", u2, err)
	}
}
