// usecase・handlerのテスト用に、repositoryをメモリ上で実装したもの。
//
// WithinTxはデータのコピーに対して実行し、成功したときだけ反映する。
// 途中で失敗させても何も残らない
package repotest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"delivery/internal/domain/model"
	"delivery/internal/repository"
)

type state struct {
	seq      int64
	users    map[int64]model.User
	orders   map[int64]model.Order
	items    map[int64]model.OrderItem
	products map[int64]model.Product
	refresh  map[string]model.RefreshToken
	audit    []model.AuditLog
}

func newState() *state {
	return &state{
		users:    map[int64]model.User{},
		orders:   map[int64]model.Order{},
		items:    map[int64]model.OrderItem{},
		products: map[int64]model.Product{},
		refresh:  map[string]model.RefreshToken{},
	}
}

func (s *state) clone() *state {
	c := newState()
	c.seq = s.seq
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.orders {
		c.orders[k] = v
	}
	for k, v := range s.items {
		c.items[k] = v
	}
	for k, v := range s.products {
		c.products[k] = v
	}
	for k, v := range s.refresh {
		c.refresh[k] = v
	}
	c.audit = append([]model.AuditLog(nil), s.audit...)
	return c
}

func (s *state) nextID() int64 {
	s.seq++
	return s.seq
}

type faults struct {
	mu  sync.Mutex
	ops map[string]error
}

func (f *faults) check(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ops[op]
}

// repository.TransactionManager と repository.TxRepos を実装する
type Store struct {
	mu     sync.Mutex
	txMu   sync.Mutex // WithinTx同士を直列化する
	st     *state
	faults *faults
	now    func() time.Time
}

func NewStore() *Store {
	return &Store{
		st:     newState(),
		faults: &faults{ops: map[string]error{}},
		now:    time.Now,
	}
}

// opの呼び出しをerrで失敗させる。nilで解除。opは "order_items.create_bulk" のような <repo>.<method>
func (s *Store) FailOn(op string, err error) {
	s.faults.mu.Lock()
	defer s.faults.mu.Unlock()
	if err == nil {
		delete(s.faults.ops, op)
		return
	}
	s.faults.ops[op] = err
}

func (s *Store) WithinTx(ctx context.Context, fn func(r repository.TxRepos) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	tx := &Store{st: s.st.clone(), faults: s.faults, now: s.now}
	s.mu.Unlock()

	if err := fn(tx); err != nil {
		return err
	}

	s.mu.Lock()
	s.st = tx.st
	s.mu.Unlock()
	return nil
}

func (s *Store) Users() repository.UserRepository                 { return userRepo{s} }
func (s *Store) Orders() repository.OrderRepository               { return orderRepo{s} }
func (s *Store) OrderItems() repository.OrderItemRepository       { return orderItemRepo{s} }
func (s *Store) Products() repository.ProductRepository           { return productRepo{s} }
func (s *Store) RefreshTokens() repository.RefreshTokenRepository { return refreshRepo{s} }
func (s *Store) AuditLogs() repository.AuditLogRepository         { return auditRepo{s} }

// そのまま保存し、IDを振って返す
func (s *Store) SeedUser(u model.User) model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == 0 {
		u.ID = s.st.nextID()
	}
	s.st.users[u.ID] = u
	return u
}

func (s *Store) SeedProduct(p model.Product) model.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == 0 {
		p.ID = s.st.nextID()
	}
	s.st.products[p.ID] = p
	return p
}

func (s *Store) OrderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.st.orders)
}

func (s *Store) ItemCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.st.items)
}

func (s *Store) AuditEntries() []model.AuditLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.AuditLog(nil), s.st.audit...)
}

func (s *Store) RefreshTokenCount(userID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.st.refresh {
		if t.UserID == userID {
			n++
		}
	}
	return n
}

// ===== users =====

type userRepo struct{ s *Store }

func (r userRepo) Create(ctx context.Context, user *model.User) error {
	if err := r.s.faults.check("users.create"); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.st.users {
		if strings.EqualFold(u.Email, user.Email) {
			return repository.ErrDuplicate
		}
	}
	now := r.s.now()
	user.ID = r.s.st.nextID()
	user.CreatedAt, user.UpdatedAt = now, now
	r.s.st.users[user.ID] = *user
	return nil
}

func (r userRepo) FindByID(ctx context.Context, userID int64) (*model.User, error) {
	if err := r.s.faults.check("users.find_by_id"); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.st.users[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

func (r userRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	if err := r.s.faults.check("users.find_by_email"); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.st.users {
		if strings.EqualFold(u.Email, email) {
			return &u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r userRepo) ExistsAdmin(ctx context.Context) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.st.users {
		if u.Role == model.RoleAdmin {
			return true, nil
		}
	}
	return false, nil
}

// WithinTxが直列なのでロックは不要
func (r userRepo) LockAdminBootstrap(ctx context.Context) error {
	return r.s.faults.check("users.lock_admin_bootstrap")
}

func (r userRepo) UpdateLastLogin(ctx context.Context, userID int64, at time.Time) error {
	return r.mutate(userID, func(u *model.User) { u.LastLoginAt = &at })
}

func (r userRepo) UpdatePassword(ctx context.Context, userID int64, passwordHash string) error {
	if err := r.s.faults.check("users.update_password"); err != nil {
		return err
	}
	return r.mutate(userID, func(u *model.User) {
		u.PasswordHash = passwordHash
		u.TokenVersion++
	})
}

func (r userRepo) IncrementTokenVersion(ctx context.Context, userID int64) error {
	return r.mutate(userID, func(u *model.User) { u.TokenVersion++ })
}

func (r userRepo) Delete(ctx context.Context, userID int64) error {
	if err := r.s.faults.check("users.delete"); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.st.users[userID]; !ok {
		return repository.ErrNotFound
	}
	delete(r.s.st.users, userID)
	return nil
}

func (r userRepo) mutate(userID int64, fn func(u *model.User)) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.st.users[userID]
	if !ok {
		return repository.ErrNotFound
	}
	fn(&u)
	u.UpdatedAt = r.s.now()
	r.s.st.users[userID] = u
	return nil
}

// ===== orders =====

type orderRepo struct{ s *Store }

func (r orderRepo) FindByID(ctx context.Context, orderID int64) (model.Order, error) {
	if err := r.s.faults.check("orders.find_by_id"); err != nil {
		return model.Order{}, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.st.orders[orderID]
	if !ok {
		return model.Order{}, repository.ErrNotFound
	}
	return o, nil
}

func (r orderRepo) FindByIDForUpdate(ctx context.Context, orderID int64) (model.Order, error) {
	return r.FindByID(ctx, orderID)
}

func (r orderRepo) ListByUserID(ctx context.Context, userID int64, page int, limit int) ([]model.Order, int64, error) {
	uid := userID
	return r.ListAdmin(ctx, repository.AdminOrderListFilter{Page: page, Limit: limit, UserID: &uid})
}

func (r orderRepo) Create(ctx context.Context, order model.Order) (int64, error) {
	if err := r.s.faults.check("orders.create"); err != nil {
		return 0, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := r.s.now()
	order.ID = r.s.st.nextID()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now
	r.s.st.orders[order.ID] = order
	return order.ID, nil
}

func (r orderRepo) UpdateStatus(ctx context.Context, orderID int64, from model.OrderStatus, to model.OrderStatus) error {
	if err := r.s.faults.check("orders.update_status"); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.st.orders[orderID]
	if !ok || o.Status != from {
		return repository.ErrConflict
	}
	o.Status = to
	o.UpdatedAt = r.s.now()
	r.s.st.orders[orderID] = o
	return nil
}

func (r orderRepo) UpdateTotal(ctx context.Context, orderID int64, total int64) error {
	if err := r.s.faults.check("orders.update_total"); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.st.orders[orderID]
	if !ok {
		return repository.ErrNotFound
	}
	o.TotalPrice = total
	o.UpdatedAt = r.s.now()
	r.s.st.orders[orderID] = o
	return nil
}

func (r orderRepo) Delete(ctx context.Context, orderID int64) error {
	if err := r.s.faults.check("orders.delete"); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.st.orders[orderID]; !ok {
		return repository.ErrNotFound
	}
	delete(r.s.st.orders, orderID)
	return nil
}

func (r orderRepo) DeleteByUserID(ctx context.Context, userID int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, o := range r.s.st.orders {
		if o.UserID == userID {
			delete(r.s.st.orders, id)
		}
	}
	return nil
}

func (r orderRepo) ListAdmin(ctx context.Context, f repository.AdminOrderListFilter) ([]model.Order, int64, error) {
	if err := r.s.faults.check("orders.list"); err != nil {
		return nil, 0, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	matched := make([]model.Order, 0)
	for _, o := range r.s.st.orders {
		if f.Status != "" && string(o.Status) != f.Status {
			continue
		}
		if f.UserID != nil && o.UserID != *f.UserID {
			continue
		}
		if f.From != nil && o.CreatedAt.Before(*f.From) {
			continue
		}
		if f.To != nil && o.CreatedAt.After(*f.To) {
			continue
		}
		matched = append(matched, o)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID > matched[j].ID })

	return paginate(matched, f.Page, f.Limit), int64(len(matched)), nil
}

// ===== order items =====

type orderItemRepo struct{ s *Store }

func (r orderItemRepo) CreateBulk(ctx context.Context, orderID int64, items []model.OrderItem) error {
	if err := r.s.faults.check("order_items.create_bulk"); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i := range items {
		items[i].OrderID = orderID
		items[i].ID = r.s.st.nextID()
		if items[i].CreatedAt.IsZero() {
			items[i].CreatedAt = r.s.now()
		}
		r.s.st.items[items[i].ID] = items[i]
	}
	return nil
}

func (r orderItemRepo) FindByID(ctx context.Context, itemID int64) (model.OrderItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	it, ok := r.s.st.items[itemID]
	if !ok {
		return model.OrderItem{}, repository.ErrNotFound
	}
	return it, nil
}

func (r orderItemRepo) ListByOrderID(ctx context.Context, orderID int64) ([]model.OrderItem, error) {
	if err := r.s.faults.check("order_items.list"); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]model.OrderItem, 0)
	for _, it := range r.s.st.items {
		if it.OrderID == orderID {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r orderItemRepo) Delete(ctx context.Context, itemID int64) error {
	if err := r.s.faults.check("order_items.delete"); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.st.items[itemID]; !ok {
		return repository.ErrNotFound
	}
	delete(r.s.st.items, itemID)
	return nil
}

func (r orderItemRepo) DeleteByOrderID(ctx context.Context, orderID int64) error {
	if err := r.s.faults.check("order_items.delete_by_order"); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, it := range r.s.st.items {
		if it.OrderID == orderID {
			delete(r.s.st.items, id)
		}
	}
	return nil
}

func (r orderItemRepo) DeleteByUserID(ctx context.Context, userID int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, it := range r.s.st.items {
		if o, ok := r.s.st.orders[it.OrderID]; ok && o.UserID == userID {
			delete(r.s.st.items, id)
		}
	}
	return nil
}

// ===== products =====

type productRepo struct{ s *Store }

func (r productRepo) FindByID(ctx context.Context, productID int64) (model.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.st.products[productID]
	if !ok {
		return model.Product{}, repository.ErrNotFound
	}
	return p, nil
}

func (r productRepo) FindByIDs(ctx context.Context, productIDs []int64) ([]model.Product, error) {
	if err := r.s.faults.check("products.find_by_ids"); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]model.Product, 0, len(productIDs))
	seen := map[int64]bool{}
	for _, id := range productIDs {
		if p, ok := r.s.st.products[id]; ok && !seen[id] {
			seen[id] = true
			out = append(out, p)
		}
	}
	return out, nil
}

func (r productRepo) List(ctx context.Context, q repository.ProductListQuery) ([]model.Product, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	matched := make([]model.Product, 0)
	for _, p := range r.s.st.products {
		if q.ActiveOnly && !p.IsActive {
			continue
		}
		if q.Q != "" && !strings.Contains(strings.ToLower(p.Name), strings.ToLower(q.Q)) {
			continue
		}
		if q.MinPrice != nil && p.Price < *q.MinPrice {
			continue
		}
		if q.MaxPrice != nil && p.Price > *q.MaxPrice {
			continue
		}
		matched = append(matched, p)
	}

	switch q.Sort {
	case "price_asc":
		sort.Slice(matched, func(i, j int) bool { return matched[i].Price < matched[j].Price })
	case "price_desc":
		sort.Slice(matched, func(i, j int) bool { return matched[i].Price > matched[j].Price })
	default:
		sort.Slice(matched, func(i, j int) bool { return matched[i].ID > matched[j].ID })
	}

	return paginate(matched, q.Page, q.Limit), int64(len(matched)), nil
}

func (r productRepo) Create(ctx context.Context, p *model.Product) error {
	if err := r.s.faults.check("products.create"); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := r.s.now()
	p.ID = r.s.st.nextID()
	p.CreatedAt, p.UpdatedAt = now, now
	r.s.st.products[p.ID] = *p
	return nil
}

func (r productRepo) Update(ctx context.Context, p *model.Product) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.st.products[p.ID]; !ok {
		return repository.ErrNotFound
	}
	p.UpdatedAt = r.s.now()
	r.s.st.products[p.ID] = *p
	return nil
}

// ===== refresh tokens =====

type refreshRepo struct{ s *Store }

func (r refreshRepo) Create(ctx context.Context, token *model.RefreshToken) error {
	if err := r.s.faults.check("refresh_tokens.create"); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, t := range r.s.st.refresh {
		if t.TokenHash == token.TokenHash {
			return repository.ErrDuplicate
		}
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = r.s.now()
	}
	r.s.st.refresh[token.ID] = *token
	return nil
}

func (r refreshRepo) FindByTokenHash(ctx context.Context, tokenHash string) (*model.RefreshToken, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, t := range r.s.st.refresh {
		if t.TokenHash == tokenHash {
			return &t, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r refreshRepo) MarkUsed(ctx context.Context, tokenID string, usedAt time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.st.refresh[tokenID]
	if !ok || t.UsedAt != nil {
		return repository.ErrConflict
	}
	t.UsedAt = &usedAt
	r.s.st.refresh[tokenID] = t
	return nil
}

func (r refreshRepo) DeleteAllByUserID(ctx context.Context, userID int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, t := range r.s.st.refresh {
		if t.UserID == userID {
			delete(r.s.st.refresh, id)
		}
	}
	return nil
}

func (r refreshRepo) DeleteByID(ctx context.Context, tokenID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.st.refresh[tokenID]; !ok {
		return repository.ErrNotFound
	}
	delete(r.s.st.refresh, tokenID)
	return nil
}

// ===== audit logs =====

type auditRepo struct{ s *Store }

func (r auditRepo) Create(ctx context.Context, log model.AuditLog) error {
	if err := r.s.faults.check("audit_logs.create"); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	log.ID = r.s.st.nextID()
	r.s.st.audit = append(r.s.st.audit, log)
	return nil
}

func (r auditRepo) List(ctx context.Context, filter repository.AuditLogFilter) ([]model.AuditLog, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]model.AuditLog, 0)
	for i := len(r.s.st.audit) - 1; i >= 0; i-- {
		l := r.s.st.audit[i]
		if filter.ActorUserID != nil && l.ActorUserID != *filter.ActorUserID {
			continue
		}
		if filter.Action != nil && l.Action != *filter.Action {
			continue
		}
		if filter.ResourceType != nil && l.ResourceType != *filter.ResourceType {
			continue
		}
		if filter.ResourceID != nil && l.ResourceID != *filter.ResourceID {
			continue
		}
		if filter.CreatedFrom != nil && l.CreatedAt.Before(*filter.CreatedFrom) {
			continue
		}
		if filter.CreatedTo != nil && l.CreatedAt.After(*filter.CreatedTo) {
			continue
		}
		out = append(out, l)
	}
	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return []model.AuditLog{}, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func paginate[T any](all []T, page, limit int) []T {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 50
	}
	start := (page - 1) * limit
	if start >= len(all) {
		return []T{}
	}
	end := start + limit
	if end > len(all) {
		end = len(all)
	}
	return all[start:end]
}

var (
	_ repository.TransactionManager = (*Store)(nil)
	_ repository.TxRepos            = (*Store)(nil)
)
