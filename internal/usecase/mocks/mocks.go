package mocks

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sovrhq/clearing/internal/domain"
	"github.com/sovrhq/clearing/internal/usecase"
)

// MockFinalityStore is an in-memory FinalityStore. Its default behavior
// implements the real claim semantics (atomic Begin, first writer wins on
// finalized results) so concurrency tests exercise the actual contract.
type MockFinalityStore struct {
	mu     sync.Mutex
	claims map[string]*domain.IntentClaim

	LookupFunc        func(ctx context.Context, intentID string) (*domain.IntentClaim, error)
	LookupEntryFunc   func(ctx context.Context, entryID string) (*domain.IntentClaim, error)
	BeginFunc         func(ctx context.Context, intentID, entryID string) (bool, *domain.IntentClaim, error)
	CompleteFunc      func(ctx context.Context, tx usecase.Transaction, intentID string, result *domain.ClearingResult) (*domain.ClearingResult, bool, error)
	ReleaseFunc       func(ctx context.Context, intentID string) error
	ListFinalizedFunc func(ctx context.Context, since time.Time, limit int) ([]*domain.ClearingResult, error)
}

func NewMockFinalityStore() *MockFinalityStore {
	return &MockFinalityStore{
		claims: make(map[string]*domain.IntentClaim),
	}
}

func (m *MockFinalityStore) Lookup(ctx context.Context, intentID string) (*domain.IntentClaim, error) {
	if m.LookupFunc != nil {
		return m.LookupFunc(ctx, intentID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if claim, ok := m.claims[intentID]; ok {
		return cloneClaim(claim), nil
	}
	return nil, domain.ErrIntentNotFound
}

func (m *MockFinalityStore) LookupEntry(ctx context.Context, entryID string) (*domain.IntentClaim, error) {
	if m.LookupEntryFunc != nil {
		return m.LookupEntryFunc(ctx, entryID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, claim := range m.claims {
		if claim.EntryID == entryID {
			return cloneClaim(claim), nil
		}
	}
	return nil, domain.ErrIntentNotFound
}

func (m *MockFinalityStore) Begin(ctx context.Context, intentID, entryID string) (bool, *domain.IntentClaim, error) {
	if m.BeginFunc != nil {
		return m.BeginFunc(ctx, intentID, entryID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	claim, ok := m.claims[intentID]
	if !ok {
		if m.claimForEntry(entryID) != nil {
			return false, nil, domain.ErrIntentConflict
		}
		m.claims[intentID] = &domain.IntentClaim{
			IntentID:  intentID,
			EntryID:   entryID,
			InFlight:  true,
			Attempts:  1,
			CreatedAt: now,
			UpdatedAt: now,
		}
		return true, nil, nil
	}
	if claim.EntryID != entryID {
		return false, cloneClaim(claim), domain.ErrIntentConflict
	}
	if claim.InFlight {
		return false, cloneClaim(claim), nil
	}
	if claim.Result == nil || claim.Result.Retryable() {
		prior := cloneClaim(claim)
		claim.InFlight = true
		claim.Result = nil
		claim.Attempts++
		claim.UpdatedAt = now
		return true, prior, nil
	}
	return false, cloneClaim(claim), nil
}

func (m *MockFinalityStore) Complete(ctx context.Context, tx usecase.Transaction, intentID string, result *domain.ClearingResult) (*domain.ClearingResult, bool, error) {
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, tx, intentID, result)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	claim, ok := m.claims[intentID]
	if !ok {
		if m.claimForEntry(result.EntryID) != nil {
			return nil, false, domain.ErrIntentConflict
		}
		claim = &domain.IntentClaim{IntentID: intentID, EntryID: result.EntryID, CreatedAt: now}
		m.claims[intentID] = claim
	}
	if claim.Result != nil && claim.Result.Status.Finalized() {
		return claim.Result, false, nil
	}
	if claim.InFlight && claim.EntryID != result.EntryID {
		return nil, false, domain.ErrIntentConflict
	}
	claim.Result = result
	claim.InFlight = false
	claim.UpdatedAt = now
	return result, true, nil
}

func (m *MockFinalityStore) Release(ctx context.Context, intentID string) error {
	if m.ReleaseFunc != nil {
		return m.ReleaseFunc(ctx, intentID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if claim, ok := m.claims[intentID]; ok {
		claim.InFlight = false
		claim.UpdatedAt = time.Now().UTC()
	}
	return nil
}

func (m *MockFinalityStore) ListFinalized(ctx context.Context, since time.Time, limit int) ([]*domain.ClearingResult, error) {
	if m.ListFinalizedFunc != nil {
		return m.ListFinalizedFunc(ctx, since, limit)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var results []*domain.ClearingResult
	for _, claim := range m.claims {
		if claim.Result == nil || !claim.Result.Status.Finalized() {
			continue
		}
		if claim.Result.FinalizedAt != nil && claim.Result.FinalizedAt.Before(since) {
			continue
		}
		results = append(results, claim.Result)
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].IntentID < results[j].IntentID
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Claim returns the raw stored claim for assertions.
func (m *MockFinalityStore) Claim(intentID string) *domain.IntentClaim {
	m.mu.Lock()
	defer m.mu.Unlock()
	if claim, ok := m.claims[intentID]; ok {
		return cloneClaim(claim)
	}
	return nil
}

// claimForEntry returns the claim holding entryID, mirroring the unique
// entry binding of the durable store. Callers hold mu.
func (m *MockFinalityStore) claimForEntry(entryID string) *domain.IntentClaim {
	for _, claim := range m.claims {
		if claim.EntryID == entryID {
			return claim
		}
	}
	return nil
}

func cloneClaim(claim *domain.IntentClaim) *domain.IntentClaim {
	c := *claim
	return &c
}

// MockLedgerAuthority is an in-memory LedgerAuthority with real balance
// arithmetic: transfers are idempotent per intent key and debits below zero
// are refused unless the account is marked as allowed to go negative.
type MockLedgerAuthority struct {
	mu            sync.Mutex
	balances      map[string]int64
	allowNegative map[string]bool
	transfers     map[string]*usecase.TransferOutcome
	seq           int

	CreateTransferFunc      func(ctx context.Context, debitAccountID, creditAccountID string, amount uint64, intentKey string) (*usecase.TransferOutcome, error)
	GetTransferByIntentFunc func(ctx context.Context, intentKey string) (*usecase.TransferOutcome, error)
	GetBalanceFunc          func(ctx context.Context, accountID string) (int64, error)
	ProvisionAccountFunc    func(ctx context.Context, accountID string, allowNegative bool) error
}

func NewMockLedgerAuthority() *MockLedgerAuthority {
	return &MockLedgerAuthority{
		balances:      make(map[string]int64),
		allowNegative: make(map[string]bool),
		transfers:     make(map[string]*usecase.TransferOutcome),
	}
}

// SetBalance seeds an account balance.
func (m *MockLedgerAuthority) SetBalance(accountID string, balance int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[accountID] = balance
}

// AllowNegative lets an account be debited below zero.
func (m *MockLedgerAuthority) AllowNegative(accountID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.allowNegative[accountID] = true
}

// CommittedTransfers returns how many distinct transfers were committed.
func (m *MockLedgerAuthority) CommittedTransfers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.transfers)
}

// ProvisionAccount registers an account at zero balance. Idempotent: an
// existing account keeps its balance and only the negative policy is updated.
func (m *MockLedgerAuthority) ProvisionAccount(ctx context.Context, accountID string, allowNegative bool) error {
	if m.ProvisionAccountFunc != nil {
		return m.ProvisionAccountFunc(ctx, accountID, allowNegative)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.balances[accountID]; !ok {
		m.balances[accountID] = 0
	}
	m.allowNegative[accountID] = allowNegative
	return nil
}

func (m *MockLedgerAuthority) CreateTransfer(ctx context.Context, debitAccountID, creditAccountID string, amount uint64, intentKey string) (*usecase.TransferOutcome, error) {
	if m.CreateTransferFunc != nil {
		return m.CreateTransferFunc(ctx, debitAccountID, creditAccountID, amount, intentKey)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if outcome, ok := m.transfers[intentKey]; ok {
		return outcome, nil
	}
	if m.balances[debitAccountID]-int64(amount) < 0 && !m.allowNegative[debitAccountID] {
		return &usecase.TransferOutcome{
			Accepted: false,
			Reason:   fmt.Sprintf("insufficient balance on account %s", debitAccountID),
		}, nil
	}
	m.balances[debitAccountID] -= int64(amount)
	m.balances[creditAccountID] += int64(amount)
	m.seq++
	outcome := &usecase.TransferOutcome{
		Accepted:   true,
		TransferID: fmt.Sprintf("authority-transfer-%d", m.seq),
	}
	m.transfers[intentKey] = outcome
	return outcome, nil
}

func (m *MockLedgerAuthority) GetTransferByIntent(ctx context.Context, intentKey string) (*usecase.TransferOutcome, error) {
	if m.GetTransferByIntentFunc != nil {
		return m.GetTransferByIntentFunc(ctx, intentKey)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if outcome, ok := m.transfers[intentKey]; ok {
		return outcome, nil
	}
	return nil, domain.ErrTransferNotFound
}

func (m *MockLedgerAuthority) GetBalance(ctx context.Context, accountID string) (int64, error) {
	if m.GetBalanceFunc != nil {
		return m.GetBalanceFunc(ctx, accountID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[accountID], nil
}

// MockMirrorStore is an in-memory MirrorStore, idempotent per intent id like
// the real append path.
type MockMirrorStore struct {
	mu      sync.Mutex
	records map[string]*domain.NarrativeRecord
	order   []string

	AppendFunc      func(ctx context.Context, record *domain.NarrativeRecord) (string, error)
	GetByIntentFunc func(ctx context.Context, intentID string) (*domain.NarrativeRecord, error)
	QueryFunc       func(ctx context.Context, filter usecase.NarrativeFilter) ([]*domain.NarrativeRecord, error)
}

func NewMockMirrorStore() *MockMirrorStore {
	return &MockMirrorStore{
		records: make(map[string]*domain.NarrativeRecord),
	}
}

func (m *MockMirrorStore) Append(ctx context.Context, record *domain.NarrativeRecord) (string, error) {
	if m.AppendFunc != nil {
		return m.AppendFunc(ctx, record)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.records[record.IntentID]; ok {
		return existing.ID, nil
	}
	m.records[record.IntentID] = record
	m.order = append(m.order, record.IntentID)
	return record.ID, nil
}

func (m *MockMirrorStore) GetByIntent(ctx context.Context, intentID string) (*domain.NarrativeRecord, error) {
	if m.GetByIntentFunc != nil {
		return m.GetByIntentFunc(ctx, intentID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if record, ok := m.records[intentID]; ok {
		return record, nil
	}
	return nil, domain.ErrNarrativeNotFound
}

func (m *MockMirrorStore) Query(ctx context.Context, filter usecase.NarrativeFilter) ([]*domain.NarrativeRecord, error) {
	if m.QueryFunc != nil {
		return m.QueryFunc(ctx, filter)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var records []*domain.NarrativeRecord
	for i := len(m.order) - 1; i >= 0; i-- {
		record := m.records[m.order[i]]
		if filter.Source != "" && string(record.Source) != filter.Source {
			continue
		}
		if filter.AccountID != "" && !touchesAccount(record, filter.AccountID) {
			continue
		}
		records = append(records, record)
	}
	if filter.Offset > 0 {
		if filter.Offset >= len(records) {
			return nil, nil
		}
		records = records[filter.Offset:]
	}
	if filter.Limit > 0 && len(records) > filter.Limit {
		records = records[:filter.Limit]
	}
	return records, nil
}

// Len returns how many records were appended.
func (m *MockMirrorStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

func touchesAccount(record *domain.NarrativeRecord, accountID string) bool {
	for _, line := range record.Lines {
		if line.AccountID == accountID {
			return true
		}
	}
	return false
}

// MockOutboxRepository is an in-memory OutboxRepository.
type MockOutboxRepository struct {
	mu     sync.Mutex
	events []*domain.MirrorOutboxEvent

	CreateFunc           func(ctx context.Context, tx usecase.Transaction, event *domain.MirrorOutboxEvent) error
	GetUnpublishedFunc   func(ctx context.Context, limit int) ([]*domain.MirrorOutboxEvent, error)
	MarkPublishedFunc    func(ctx context.Context, id string, publishedAt time.Time) error
	RecordAttemptFunc    func(ctx context.Context, id string) error
	HasUnpublishedFunc   func(ctx context.Context, intentID string) (bool, error)
	CountUnpublishedFunc func(ctx context.Context) (int64, error)
	DeletePublishedFunc  func(ctx context.Context, before time.Time) error
}

func NewMockOutboxRepository() *MockOutboxRepository {
	return &MockOutboxRepository{}
}

func (m *MockOutboxRepository) Create(ctx context.Context, tx usecase.Transaction, event *domain.MirrorOutboxEvent) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, tx, event)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *MockOutboxRepository) GetUnpublished(ctx context.Context, limit int) ([]*domain.MirrorOutboxEvent, error) {
	if m.GetUnpublishedFunc != nil {
		return m.GetUnpublishedFunc(ctx, limit)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var events []*domain.MirrorOutboxEvent
	for _, event := range m.events {
		if event.Published {
			continue
		}
		events = append(events, event)
		if limit > 0 && len(events) == limit {
			break
		}
	}
	return events, nil
}

func (m *MockOutboxRepository) MarkPublished(ctx context.Context, id string, publishedAt time.Time) error {
	if m.MarkPublishedFunc != nil {
		return m.MarkPublishedFunc(ctx, id, publishedAt)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, event := range m.events {
		if event.ID == id {
			event.Published = true
			event.PublishedAt = &publishedAt
			return nil
		}
	}
	return nil
}

func (m *MockOutboxRepository) RecordAttempt(ctx context.Context, id string) error {
	if m.RecordAttemptFunc != nil {
		return m.RecordAttemptFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, event := range m.events {
		if event.ID == id {
			event.Attempts++
			return nil
		}
	}
	return nil
}

func (m *MockOutboxRepository) HasUnpublished(ctx context.Context, intentID string) (bool, error) {
	if m.HasUnpublishedFunc != nil {
		return m.HasUnpublishedFunc(ctx, intentID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, event := range m.events {
		if event.IntentID == intentID && !event.Published {
			return true, nil
		}
	}
	return false, nil
}

func (m *MockOutboxRepository) CountUnpublished(ctx context.Context) (int64, error) {
	if m.CountUnpublishedFunc != nil {
		return m.CountUnpublishedFunc(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, event := range m.events {
		if !event.Published {
			n++
		}
	}
	return n, nil
}

func (m *MockOutboxRepository) DeletePublished(ctx context.Context, before time.Time) error {
	if m.DeletePublishedFunc != nil {
		return m.DeletePublishedFunc(ctx, before)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var kept []*domain.MirrorOutboxEvent
	for _, event := range m.events {
		if event.Published && event.PublishedAt != nil && event.PublishedAt.Before(before) {
			continue
		}
		kept = append(kept, event)
	}
	m.events = kept
	return nil
}

// Events returns a snapshot of all stored events.
func (m *MockOutboxRepository) Events() []*domain.MirrorOutboxEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.MirrorOutboxEvent, len(m.events))
	copy(out, m.events)
	return out
}

// MockReservationManager is an in-memory ReservationManager with
// all-or-nothing acquisition.
type MockReservationManager struct {
	mu   sync.Mutex
	held map[string]string
	seq  int

	AcquireFunc func(ctx context.Context, accountIDs []string, ttl time.Duration) (*usecase.Reservation, error)
	ReleaseFunc func(ctx context.Context, reservation *usecase.Reservation) error
}

func NewMockReservationManager() *MockReservationManager {
	return &MockReservationManager{
		held: make(map[string]string),
	}
}

func (m *MockReservationManager) Acquire(ctx context.Context, accountIDs []string, ttl time.Duration) (*usecase.Reservation, error) {
	if m.AcquireFunc != nil {
		return m.AcquireFunc(ctx, accountIDs, ttl)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range accountIDs {
		if _, ok := m.held[id]; ok {
			return nil, domain.ErrReservationConflict
		}
	}
	m.seq++
	token := fmt.Sprintf("reservation-%d", m.seq)
	for _, id := range accountIDs {
		m.held[id] = token
	}
	return &usecase.Reservation{Token: token, AccountIDs: accountIDs}, nil
}

func (m *MockReservationManager) Release(ctx context.Context, reservation *usecase.Reservation) error {
	if m.ReleaseFunc != nil {
		return m.ReleaseFunc(ctx, reservation)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range reservation.AccountIDs {
		if m.held[id] == reservation.Token {
			delete(m.held, id)
		}
	}
	return nil
}

// HeldAccounts returns the accounts currently reserved.
func (m *MockReservationManager) HeldAccounts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.held))
	for id := range m.held {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// MockTransactionManager is a mock implementation of TransactionManager.
type MockTransactionManager struct {
	BeginFunc func(ctx context.Context) (usecase.Transaction, error)
}

func NewMockTransactionManager() *MockTransactionManager {
	return &MockTransactionManager{}
}

func (m *MockTransactionManager) Begin(ctx context.Context) (usecase.Transaction, error) {
	if m.BeginFunc != nil {
		return m.BeginFunc(ctx)
	}
	return &MockTransaction{}, nil
}

// MockTransaction is a mock implementation of Transaction.
type MockTransaction struct {
	CommitFunc   func(ctx context.Context) error
	RollbackFunc func(ctx context.Context) error
}

func (m *MockTransaction) Commit(ctx context.Context) error {
	if m.CommitFunc != nil {
		return m.CommitFunc(ctx)
	}
	return nil
}

func (m *MockTransaction) Rollback(ctx context.Context) error {
	if m.RollbackFunc != nil {
		return m.RollbackFunc(ctx)
	}
	return nil
}

// MockIDGenerator is a mock implementation of IDGenerator.
type MockIDGenerator struct {
	GenerateFunc func() string
	counter      int
	mu           sync.Mutex
}

func NewMockIDGenerator() *MockIDGenerator {
	return &MockIDGenerator{}
}

func (m *MockIDGenerator) Generate() string {
	if m.GenerateFunc != nil {
		return m.GenerateFunc()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counter++
	return fmt.Sprintf("mock-id-%d", m.counter)
}

// MockCache is an in-memory Cache.
type MockCache struct {
	mu   sync.RWMutex
	data map[string][]byte

	GetFunc    func(ctx context.Context, key string) ([]byte, error)
	SetFunc    func(ctx context.Context, key string, value []byte, ttl time.Duration) error
	DeleteFunc func(ctx context.Context, key string) error
}

func NewMockCache() *MockCache {
	return &MockCache{
		data: make(map[string][]byte),
	}
}

func (m *MockCache) Get(ctx context.Context, key string) ([]byte, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, key)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if value, ok := m.data[key]; ok {
		return value, nil
	}
	return nil, nil
}

func (m *MockCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if m.SetFunc != nil {
		return m.SetFunc(ctx, key, value, ttl)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *MockCache) Delete(ctx context.Context, key string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}
