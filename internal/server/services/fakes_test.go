package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/pointshare/internal/common"
	"github.com/dmitrijs2005/pointshare/internal/cryptox"
	"github.com/dmitrijs2005/pointshare/internal/dbx"
	"github.com/dmitrijs2005/pointshare/internal/logging"
	"github.com/dmitrijs2005/pointshare/internal/server/config"
	"github.com/dmitrijs2005/pointshare/internal/server/metrics"
	"github.com/dmitrijs2005/pointshare/internal/server/models"
	"github.com/dmitrijs2005/pointshare/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/pointshare/internal/server/repositories/confirmationtokens"
	"github.com/dmitrijs2005/pointshare/internal/server/repositories/images"
	"github.com/dmitrijs2005/pointshare/internal/server/repositories/notifications"
	"github.com/dmitrijs2005/pointshare/internal/server/repositories/points"
	"github.com/dmitrijs2005/pointshare/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/pointshare/internal/server/repositories/votes"
)

// memStore is an in-memory stand-in for the database. Single operations are
// guarded by mu. Transactions run concurrently: GetForUpdate takes a per-row
// lock held until the transaction ends, and a failed transaction is rolled
// back by replaying its undo log.
type memStore struct {
	mu sync.Mutex

	accounts      map[string]*models.Account
	balances      map[string]models.Points
	refresh       []*models.RefreshToken
	confirmations []*models.EmailConfirmationToken
	images        map[string]*models.Image
	votes         []*models.Vote
	notifications []*models.Notification
	nextID        int64
	rowLocks      map[string]*sync.Mutex

	failRefreshDelete error
	// beforeVoteCreate, when set, runs ahead of every vote insert; a non-nil
	// error is returned by the insert as-is.
	beforeVoteCreate func(v *models.Vote) error
	// beforePointsAdd, when set, can fail a balance update.
	beforePointsAdd func(accountID string, delta models.Points) error
}

func newMemStore() *memStore {
	return &memStore{
		accounts: map[string]*models.Account{},
		balances: map[string]models.Points{},
		images:   map[string]*models.Image{},
		rowLocks: map[string]*sync.Mutex{},
	}
}

func (s *memStore) id() int64 {
	s.nextID++
	return s.nextID
}

type memTx struct {
	undo   []func()
	locked map[string]*sync.Mutex
}

type memTxKey struct{}

func txFrom(ctx context.Context) *memTx {
	tx, _ := ctx.Value(memTxKey{}).(*memTx)
	return tx
}

// onRollback registers fn to undo a mutation made inside ctx's transaction.
// Callers hold s.mu; fn runs with s.mu held.
func (s *memStore) onRollback(ctx context.Context, fn func()) {
	if tx := txFrom(ctx); tx != nil {
		tx.undo = append(tx.undo, fn)
	}
}

// lockRow blocks until ctx's transaction owns the row lock for key.
func (s *memStore) lockRow(ctx context.Context, key string) {
	tx := txFrom(ctx)
	if tx == nil {
		return
	}
	if _, ok := tx.locked[key]; ok {
		return
	}
	s.mu.Lock()
	l, ok := s.rowLocks[key]
	if !ok {
		l = &sync.Mutex{}
		s.rowLocks[key] = l
	}
	s.mu.Unlock()

	l.Lock()
	tx.locked[key] = l
}

// withTx matches dbx.TxFunc.
func (s *memStore) withTx(ctx context.Context, _ *sql.DB, _ *sql.TxOptions, fn func(ctx context.Context, tx dbx.DBTX) error) error {
	tx := &memTx{locked: map[string]*sync.Mutex{}}
	err := fn(context.WithValue(ctx, memTxKey{}, tx), nil)
	if err != nil {
		s.mu.Lock()
		for i := len(tx.undo) - 1; i >= 0; i-- {
			tx.undo[i]()
		}
		s.mu.Unlock()
	}
	for _, l := range tx.locked {
		l.Unlock()
	}
	return err
}

func (s *memStore) balance(id string) models.Points {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balances[id]
}

func (s *memStore) voteCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.votes)
}

func cloneAccount(a *models.Account) *models.Account {
	c := *a
	c.Roles = slices.Clone(a.Roles)
	return &c
}

func cloneImage(i *models.Image) *models.Image {
	c := *i
	if i.ApprovedBy != nil {
		v := *i.ApprovedBy
		c.ApprovedBy = &v
	}
	if i.ApprovedOn != nil {
		v := *i.ApprovedOn
		c.ApprovedOn = &v
	}
	return &c
}

type fakeManager struct{ s *memStore }

func (m fakeManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m fakeManager) Accounts(dbx.DBTX) accounts.Repository        { return fakeAccounts(m) }
func (m fakeManager) RefreshTokens(dbx.DBTX) refreshtokens.Repository {
	return fakeRefreshTokens(m)
}
func (m fakeManager) ConfirmationTokens(dbx.DBTX) confirmationtokens.Repository {
	return fakeConfirmations(m)
}
func (m fakeManager) Points(dbx.DBTX) points.Repository               { return fakePoints(m) }
func (m fakeManager) Votes(dbx.DBTX) votes.Repository                 { return fakeVotes(m) }
func (m fakeManager) Images(dbx.DBTX) images.Repository               { return fakeImages(m) }
func (m fakeManager) Notifications(dbx.DBTX) notifications.Repository { return fakeNotifications(m) }

type fakeAccounts struct{ s *memStore }

func (r fakeAccounts) Create(ctx context.Context, a *models.Account) (*models.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, x := range r.s.accounts {
		if x.UserName == a.UserName || x.Email == a.Email {
			return nil, common.ErrorAlreadyExists
		}
	}
	c := cloneAccount(a)
	c.CreatedAt = time.Now()
	r.s.accounts[c.ID] = c
	r.s.onRollback(ctx, func() { delete(r.s.accounts, c.ID) })
	return cloneAccount(c), nil
}

func (r fakeAccounts) GetByID(_ context.Context, id string) (*models.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.accounts[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return cloneAccount(a), nil
}

func (r fakeAccounts) GetByUserName(_ context.Context, userName string) (*models.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, a := range r.s.accounts {
		if a.UserName == userName {
			return cloneAccount(a), nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r fakeAccounts) ExistsByUserName(ctx context.Context, userName string) (bool, error) {
	_, err := r.GetByUserName(ctx, userName)
	return err == nil, nil
}

func (r fakeAccounts) ExistsByEmail(_ context.Context, email string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, a := range r.s.accounts {
		if a.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (r fakeAccounts) update(ctx context.Context, id string, fn func(a *models.Account)) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.accounts[id]
	if !ok {
		return common.ErrorNotFound
	}
	prev := cloneAccount(a)
	fn(a)
	r.s.onRollback(ctx, func() { r.s.accounts[id] = prev })
	return nil
}

func (r fakeAccounts) UpdateEmail(ctx context.Context, id, email string) error {
	return r.update(ctx, id, func(a *models.Account) { a.Email = email })
}

func (r fakeAccounts) UpdatePassword(ctx context.Context, id, hash string) error {
	return r.update(ctx, id, func(a *models.Account) { a.PasswordHash = hash })
}

func (r fakeAccounts) SetRoles(ctx context.Context, id string, roles []models.RoleGrant) error {
	return r.update(ctx, id, func(a *models.Account) { a.Roles = slices.Clone(roles) })
}

type fakeRefreshTokens struct{ s *memStore }

func (r fakeRefreshTokens) Create(ctx context.Context, t *models.RefreshToken) (*models.RefreshToken, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c := *t
	c.ID = r.s.id()
	r.s.refresh = append(r.s.refresh, &c)
	r.s.onRollback(ctx, func() {
		r.s.refresh = slices.DeleteFunc(r.s.refresh, func(x *models.RefreshToken) bool { return x.ID == c.ID })
	})
	out := c
	return &out, nil
}

func (r fakeRefreshTokens) FindByHash(_ context.Context, hash string) (*models.RefreshToken, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, t := range r.s.refresh {
		if t.HashedToken == hash {
			c := *t
			return &c, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r fakeRefreshTokens) ListByAccount(_ context.Context, accountID string) ([]*models.RefreshToken, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.RefreshToken
	for _, t := range r.s.refresh {
		if t.AccountID == accountID {
			c := *t
			out = append(out, &c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r fakeRefreshTokens) CountByAccount(ctx context.Context, accountID string) (int, error) {
	list, err := r.ListByAccount(ctx, accountID)
	return len(list), err
}

// remove deletes the matching tokens and returns how many went. Callers hold mu.
func (r fakeRefreshTokens) remove(ctx context.Context, match func(t *models.RefreshToken) bool) int {
	var gone []*models.RefreshToken
	r.s.refresh = slices.DeleteFunc(r.s.refresh, func(t *models.RefreshToken) bool {
		if match(t) {
			gone = append(gone, t)
			return true
		}
		return false
	})
	r.s.onRollback(ctx, func() { r.s.refresh = append(r.s.refresh, gone...) })
	return len(gone)
}

func (r fakeRefreshTokens) DeleteByID(ctx context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.failRefreshDelete != nil {
		return r.s.failRefreshDelete
	}
	r.remove(ctx, func(t *models.RefreshToken) bool { return t.ID == id })
	return nil
}

func (r fakeRefreshTokens) DeleteByHash(ctx context.Context, hash string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.remove(ctx, func(t *models.RefreshToken) bool { return t.HashedToken == hash }) == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r fakeRefreshTokens) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return int64(r.remove(ctx, func(t *models.RefreshToken) bool { return t.IsExpired(now) })), nil
}

type fakeConfirmations struct{ s *memStore }

func (r fakeConfirmations) Create(ctx context.Context, t *models.EmailConfirmationToken) (*models.EmailConfirmationToken, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c := *t
	c.ID = r.s.id()
	r.s.confirmations = append(r.s.confirmations, &c)
	r.s.onRollback(ctx, func() {
		r.s.confirmations = slices.DeleteFunc(r.s.confirmations, func(x *models.EmailConfirmationToken) bool { return x.ID == c.ID })
	})
	out := c
	return &out, nil
}

func (r fakeConfirmations) FindByHash(_ context.Context, hash string) (*models.EmailConfirmationToken, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, t := range r.s.confirmations {
		if t.HashedToken == hash {
			c := *t
			return &c, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r fakeConfirmations) ListByAccount(_ context.Context, accountID string) ([]*models.EmailConfirmationToken, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.EmailConfirmationToken
	for _, t := range r.s.confirmations {
		if t.AccountID == accountID {
			c := *t
			out = append(out, &c)
		}
	}
	return out, nil
}

func (r fakeConfirmations) LatestByAccount(ctx context.Context, accountID string) (*models.EmailConfirmationToken, error) {
	list, _ := r.ListByAccount(ctx, accountID)
	if len(list) == 0 {
		return nil, common.ErrorNotFound
	}
	latest := list[0]
	for _, t := range list[1:] {
		if !t.CreatedAt.Before(latest.CreatedAt) {
			latest = t
		}
	}
	return latest, nil
}

func (r fakeConfirmations) remove(ctx context.Context, match func(t *models.EmailConfirmationToken) bool) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var gone []*models.EmailConfirmationToken
	r.s.confirmations = slices.DeleteFunc(r.s.confirmations, func(t *models.EmailConfirmationToken) bool {
		if match(t) {
			gone = append(gone, t)
			return true
		}
		return false
	})
	r.s.onRollback(ctx, func() { r.s.confirmations = append(r.s.confirmations, gone...) })
}

func (r fakeConfirmations) DeleteByID(ctx context.Context, id int64) error {
	r.remove(ctx, func(t *models.EmailConfirmationToken) bool { return t.ID == id })
	return nil
}

func (r fakeConfirmations) DeleteAllByAccount(ctx context.Context, accountID string) error {
	r.remove(ctx, func(t *models.EmailConfirmationToken) bool { return t.AccountID == accountID })
	return nil
}

type fakePoints struct{ s *memStore }

func (r fakePoints) Create(ctx context.Context, accountID string, initial models.Points) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.balances[accountID]; ok {
		return common.ErrorAlreadyExists
	}
	r.s.balances[accountID] = initial
	r.s.onRollback(ctx, func() { delete(r.s.balances, accountID) })
	return nil
}

func (r fakePoints) Get(_ context.Context, accountID string) (models.Points, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.balances[accountID]
	if !ok {
		return 0, common.ErrorNotFound
	}
	return p, nil
}

func (r fakePoints) GetForUpdate(ctx context.Context, accountID string) (models.Points, error) {
	r.s.lockRow(ctx, "points:"+accountID)
	return r.Get(ctx, accountID)
}

// Add enforces the non-negative CHECK constraint of the points_bags table.
func (r fakePoints) Add(ctx context.Context, accountID string, delta models.Points) (models.Points, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.beforePointsAdd != nil {
		if err := r.s.beforePointsAdd(accountID, delta); err != nil {
			return 0, err
		}
	}
	p, ok := r.s.balances[accountID]
	if !ok {
		return 0, common.ErrorNotFound
	}
	if p+delta < 0 {
		return 0, errors.New("points_bags_points_check")
	}
	r.s.balances[accountID] = p + delta
	r.s.onRollback(ctx, func() { r.s.balances[accountID] -= delta })
	return p + delta, nil
}

type fakeVotes struct{ s *memStore }

func (r fakeVotes) Create(ctx context.Context, v *models.Vote) (*models.Vote, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.beforeVoteCreate != nil {
		if err := r.s.beforeVoteCreate(v); err != nil {
			return nil, err
		}
	}
	for _, x := range r.s.votes {
		if x.VoterID == v.VoterID && x.ImageID == v.ImageID {
			return nil, common.ErrorAlreadyExists
		}
	}
	c := *v
	c.ID = r.s.id()
	r.s.votes = append(r.s.votes, &c)
	r.s.onRollback(ctx, func() {
		r.s.votes = slices.DeleteFunc(r.s.votes, func(x *models.Vote) bool { return x.ID == c.ID })
	})
	out := c
	return &out, nil
}

func (r fakeVotes) ExistsByVoterAndImage(_ context.Context, voterID, imageID string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, x := range r.s.votes {
		if x.VoterID == voterID && x.ImageID == imageID {
			return true, nil
		}
	}
	return false, nil
}

func (r fakeVotes) SumReceivedBy(_ context.Context, accountID string) (models.Points, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var sum models.Points
	for _, v := range r.s.votes {
		if img, ok := r.s.images[v.ImageID]; ok && img.PublisherID == accountID {
			sum += v.Points
		}
	}
	return sum, nil
}

func (r fakeVotes) SumSentBy(_ context.Context, accountID string) (models.Points, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var sum models.Points
	for _, v := range r.s.votes {
		if v.VoterID == accountID {
			sum += v.Points
		}
	}
	return sum, nil
}

type fakeImages struct{ s *memStore }

func (r fakeImages) Create(ctx context.Context, i *models.Image) (*models.Image, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.images[i.ID]; ok {
		return nil, common.ErrorAlreadyExists
	}
	r.s.images[i.ID] = cloneImage(i)
	r.s.onRollback(ctx, func() { delete(r.s.images, i.ID) })
	return cloneImage(i), nil
}

func (r fakeImages) GetByID(_ context.Context, id string) (*models.Image, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	i, ok := r.s.images[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return cloneImage(i), nil
}

func (r fakeImages) Approve(ctx context.Context, id, approverID string, approvedOn time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	i, ok := r.s.images[id]
	if !ok || (i.ApprovedOn != nil && i.ApprovedOn.Before(approvedOn)) {
		return false, nil
	}
	prev := cloneImage(i)
	r.s.onRollback(ctx, func() { r.s.images[id] = prev })
	i.ApprovedBy = &approverID
	i.ApprovedOn = &approvedOn
	return true, nil
}

func (r fakeImages) Delete(ctx context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	img, ok := r.s.images[id]
	if !ok {
		return common.ErrorNotFound
	}
	delete(r.s.images, id)
	var gone []*models.Vote
	r.s.votes = slices.DeleteFunc(r.s.votes, func(v *models.Vote) bool {
		if v.ImageID == id {
			gone = append(gone, v)
			return true
		}
		return false
	})
	r.s.onRollback(ctx, func() {
		r.s.images[id] = img
		r.s.votes = append(r.s.votes, gone...)
	})
	return nil
}

func (r fakeImages) CountApprovedByPublisher(_ context.Context, publisherID string, now time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, i := range r.s.images {
		if i.PublisherID == publisherID && i.IsApproved(now) {
			n++
		}
	}
	return n, nil
}

// List mirrors the Postgres gallery query.
func (r fakeImages) List(_ context.Context, q models.ImageQuery) ([]*models.GalleryImage, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var (
		rows   []*models.GalleryImage
		recent = map[string]models.Points{}
		latest = map[string]time.Time{}
	)
	for _, v := range r.s.votes {
		if !q.VotesSince.IsZero() && !v.SubmittedAt.Before(q.VotesSince) {
			recent[v.ImageID] += v.Points
		}
		if v.SubmittedAt.After(latest[v.ImageID]) {
			latest[v.ImageID] = v.SubmittedAt
		}
	}
	for _, i := range r.s.images {
		publisher, ok := r.s.accounts[i.PublisherID]
		if !ok || (q.PublisherUserName != "" && publisher.UserName != q.PublisherUserName) {
			continue
		}
		switch q.Publish {
		case models.PublishApproved:
			if !i.IsApproved(q.Now) {
				continue
			}
		case models.PublishPending:
			if i.IsApproved(q.Now) {
				continue
			}
		case models.PublishAll:
		default:
			return nil, 0, common.ErrFilterNotAllowed
		}
		if q.Order.Window() > 0 && recent[i.ID] == 0 {
			continue
		}
		g := &models.GalleryImage{Image: *cloneImage(i), PublisherUserName: publisher.UserName}
		for _, v := range r.s.votes {
			if v.ImageID == i.ID {
				g.Points += v.Points
			}
		}
		rows = append(rows, g)
	}

	approvedOn := func(g *models.GalleryImage) time.Time {
		if g.ApprovedOn == nil {
			return time.Time{}
		}
		return *g.ApprovedOn
	}
	// tie-breaks shared by every ordering
	tail := func(a, b *models.GalleryImage) bool {
		if !approvedOn(a).Equal(approvedOn(b)) {
			return approvedOn(a).After(approvedOn(b))
		}
		return a.ID < b.ID
	}
	var less func(a, b *models.GalleryImage) bool
	switch q.Order {
	case models.OrderNewest:
		less = func(a, b *models.GalleryImage) bool {
			x, y := approvedOn(a), approvedOn(b)
			if !x.Equal(y) {
				return !x.IsZero() && (y.IsZero() || x.After(y))
			}
			if !a.PublishedOn.Equal(b.PublishedOn) {
				return a.PublishedOn.After(b.PublishedOn)
			}
			return a.ID < b.ID
		}
	case models.OrderOldest:
		less = func(a, b *models.GalleryImage) bool {
			x, y := approvedOn(a), approvedOn(b)
			if !x.Equal(y) {
				return !x.IsZero() && (y.IsZero() || x.Before(y))
			}
			if !a.PublishedOn.Equal(b.PublishedOn) {
				return a.PublishedOn.Before(b.PublishedOn)
			}
			return a.ID < b.ID
		}
	case models.OrderLatestVoted:
		less = func(a, b *models.GalleryImage) bool {
			if !latest[a.ID].Equal(latest[b.ID]) {
				return latest[a.ID].After(latest[b.ID])
			}
			return tail(a, b)
		}
	case models.OrderMostVoted:
		less = func(a, b *models.GalleryImage) bool {
			if a.Points != b.Points {
				return a.Points > b.Points
			}
			return tail(a, b)
		}
	case models.OrderTopVotedLast3Days, models.OrderTopVotedLastWeek, models.OrderTopVotedLastMonth:
		less = func(a, b *models.GalleryImage) bool {
			if recent[a.ID] != recent[b.ID] {
				return recent[a.ID] > recent[b.ID]
			}
			return tail(a, b)
		}
	default:
		return nil, 0, common.ErrFilterNotAllowed
	}
	sort.Slice(rows, func(i, j int) bool { return less(rows[i], rows[j]) })

	total := int64(len(rows))
	if q.Offset >= len(rows) {
		return nil, total, nil
	}
	rows = rows[q.Offset:]
	if len(rows) > q.Limit {
		rows = rows[:q.Limit]
	}
	return rows, total, nil
}

type fakeNotifications struct{ s *memStore }

func (r fakeNotifications) Create(ctx context.Context, n *models.Notification) (*models.Notification, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c := *n
	c.ID = r.s.id()
	c.CreatedAt = time.Now()
	r.s.notifications = append(r.s.notifications, &c)
	r.s.onRollback(ctx, func() {
		r.s.notifications = slices.DeleteFunc(r.s.notifications, func(x *models.Notification) bool { return x.ID == c.ID })
	})
	out := c
	return &out, nil
}

func (r fakeNotifications) ListByAccount(_ context.Context, accountID string) ([]*models.Notification, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.Notification
	for i := len(r.s.notifications) - 1; i >= 0; i-- {
		if n := r.s.notifications[i]; n.AccountID == accountID {
			c := *n
			out = append(out, &c)
		}
	}
	return out, nil
}

func (r fakeNotifications) Delete(ctx context.Context, accountID string, id int64) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var gone []*models.Notification
	r.s.notifications = slices.DeleteFunc(r.s.notifications, func(x *models.Notification) bool {
		if x.ID == id && x.AccountID == accountID {
			gone = append(gone, x)
			return true
		}
		return false
	})
	r.s.onRollback(ctx, func() { r.s.notifications = append(r.s.notifications, gone...) })
	return len(gone) > 0, nil
}

type fakeStorage struct {
	mu        sync.Mutex
	objects   map[string][]byte
	putErr    error
	deleteErr error
}

func (f *fakeStorage) Put(_ context.Context, data []byte, key, namespace string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.putErr != nil {
		return f.putErr
	}
	if f.objects == nil {
		f.objects = map[string][]byte{}
	}
	f.objects[namespace+"/"+key] = data
	return nil
}

func (f *fakeStorage) Delete(_ context.Context, key, namespace string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.objects, namespace+"/"+key)
	return nil
}

func (f *fakeStorage) has(namespace, key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[namespace+"/"+key]
	return ok
}

type pushed struct {
	userName, channel string
	payload           any
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls []pushed
	err   error
}

func (f *fakeNotifier) Notify(_ context.Context, userName, channel string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, pushed{userName, channel, payload})
	return f.err
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type sentMail struct{ to, subject, body string }

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (f *fakeMailer) Send(_ context.Context, to, subject, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMail{to, subject, body})
	return nil
}

func (f *fakeMailer) last() sentMail {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent[len(f.sent)-1]
}

type fakeAvatars struct{ err error }

func (f fakeAvatars) Generate(seed string) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []byte("png:" + seed), nil
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	store    *memStore
	clock    *testClock
	cfg      *config.Config
	metrics  *metrics.Metrics
	storage  *fakeStorage
	notifier *fakeNotifier
	mailer   *fakeMailer

	credentials   *CredentialService
	ledger        *LedgerService
	votes         *VoteService
	notifications *NotificationService
	images        *ImageService
	accounts      *AccountService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.RefreshTokenValidityDuration = time.Hour
	cfg.MaxRefreshTokensPerAccount = 3

	e := &testEnv{
		store:    newMemStore(),
		clock:    &testClock{now: t0},
		cfg:      cfg,
		metrics:  metrics.New(),
		storage:  &fakeStorage{},
		notifier: &fakeNotifier{},
		mailer:   &fakeMailer{},
	}
	m := fakeManager{e.store}
	log := logging.Nop()

	var secrets int
	var secretsMu sync.Mutex

	e.credentials = NewCredentialService(nil, m, cfg, e.metrics, log)
	e.credentials.now = e.clock.Now
	e.credentials.newSecret = func() (string, error) {
		secretsMu.Lock()
		defer secretsMu.Unlock()
		secrets++
		return fmt.Sprintf("secret-%d", secrets), nil
	}

	e.ledger = NewLedgerService(nil, m, e.metrics, log)
	e.ledger.withTx = e.store.withTx

	e.votes = NewVoteService(nil, m, e.ledger, cfg, e.metrics, log)
	e.votes.withTx = e.store.withTx
	e.votes.now = e.clock.Now

	e.notifications = NewNotificationService(nil, m, e.notifier, e.metrics, log)

	var imageIDs int
	e.images = NewImageService(nil, m, e.storage, e.notifications, e.metrics, log)
	e.images.now = e.clock.Now
	e.images.newID = func() string {
		imageIDs++
		return fmt.Sprintf("img-%d", imageIDs)
	}

	var accountIDs int
	e.accounts = NewAccountService(nil, m, cfg, e.credentials, e.ledger, e.votes, e.images,
		e.storage, e.mailer, fakeAvatars{}, e.metrics, log)
	e.accounts.withTx = e.store.withTx
	e.accounts.newID = func() string {
		accountIDs++
		return fmt.Sprintf("acc-%d", accountIDs)
	}
	return e
}

// addAccount stores an account directly with the given roles and balance.
func (e *testEnv) addAccount(t *testing.T, userName string, balance models.Points, roles ...models.RoleGrant) *models.Account {
	t.Helper()
	if len(roles) == 0 {
		roles = []models.RoleGrant{models.RoleMember}
	}
	hash, err := cryptox.HashPassword("Secret123")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	a := &models.Account{
		ID:           "id-" + userName,
		UserName:     userName,
		Email:        userName + "@example.com",
		PasswordHash: hash,
		Roles:        roles,
	}
	e.store.mu.Lock()
	e.store.accounts[a.ID] = cloneAccount(a)
	e.store.balances[a.ID] = balance
	e.store.mu.Unlock()
	return a
}

// addImage stores an image; approved images carry an approval one minute
// before the test clock.
func (e *testEnv) addImage(t *testing.T, id string, publisher *models.Account, approved bool) *models.Image {
	t.Helper()
	img := &models.Image{
		ID:          id,
		Title:       "Sunset",
		ImageKey:    id + ".png",
		PublisherID: publisher.ID,
		PublishedOn: e.clock.Now().Add(-time.Hour),
	}
	if approved {
		on := e.clock.Now().Add(-time.Minute)
		by := "id-moderator"
		img.ApprovedOn = &on
		img.ApprovedBy = &by
	}
	e.store.mu.Lock()
	e.store.images[id] = cloneImage(img)
	e.store.mu.Unlock()
	e.storage.Put(context.Background(), []byte("bytes"), img.ImageKey, common.StorageNamespaceImages)
	return img
}

func (s *memStore) accountByName(userName string) (*models.Account, error) {
	return fakeAccounts{s}.GetByUserName(context.Background(), userName)
}
