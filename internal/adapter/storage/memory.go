package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/tmachen/shopfloor/internal/core/domain"
	"github.com/tmachen/shopfloor/internal/port"
)

// MemoryStore keeps the whole cell in process memory. Execute stages writes
// in the transaction and applies them to the maps only when the unit's
// function returns nil, so an aborted unit leaves no trace. Conflicting
// units are serialized by the engine's record locks; the store's own mutex
// only guards map access.
type MemoryStore struct {
	mu            sync.RWMutex
	parts         map[string]domain.Part
	stations      map[string]domain.Station
	workers       map[string]domain.Worker
	bins          map[string]domain.Bin
	orders        map[string]domain.Order
	assemblies    map[string]domain.Assembly
	notifications map[string]domain.Notification
}

var _ port.CellStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		parts:         make(map[string]domain.Part),
		stations:      make(map[string]domain.Station),
		workers:       make(map[string]domain.Worker),
		bins:          make(map[string]domain.Bin),
		orders:        make(map[string]domain.Order),
		assemblies:    make(map[string]domain.Assembly),
		notifications: make(map[string]domain.Notification),
	}
}

func (s *MemoryStore) Execute(ctx context.Context, fn func(tx port.StoreTx) error) error {
	tx := &memoryTx{store: s}
	if err := fn(tx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, p := range tx.parts {
		s.parts[id] = p
	}
	for id, st := range tx.stations {
		s.stations[id] = st
	}
	for id, w := range tx.workers {
		s.workers[id] = w
	}
	for id, b := range tx.bins {
		s.bins[id] = b
	}
	for id, o := range tx.orders {
		s.orders[id] = o
	}
	for id, a := range tx.assemblies {
		s.assemblies[id] = a
	}
	for id, n := range tx.notifications {
		s.notifications[id] = n
	}
	return nil
}

// memoryTx overlays staged writes on the parent store: reads see the
// unit's own writes first, then committed state.
type memoryTx struct {
	store         *MemoryStore
	parts         map[string]domain.Part
	stations      map[string]domain.Station
	workers       map[string]domain.Worker
	bins          map[string]domain.Bin
	orders        map[string]domain.Order
	assemblies    map[string]domain.Assembly
	notifications map[string]domain.Notification
}

var _ port.StoreTx = (*memoryTx)(nil)

func (t *memoryTx) Part(ctx context.Context, id string) (domain.Part, error) {
	if p, ok := t.parts[id]; ok {
		return p, nil
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	p, ok := t.store.parts[id]
	if !ok {
		return domain.Part{}, port.ErrNotFound
	}
	return p, nil
}

func (t *memoryTx) SavePart(ctx context.Context, part domain.Part) error {
	if t.parts == nil {
		t.parts = make(map[string]domain.Part)
	}
	t.parts[part.ID] = part
	return nil
}

func (t *memoryTx) SaveStation(ctx context.Context, station domain.Station) error {
	if t.stations == nil {
		t.stations = make(map[string]domain.Station)
	}
	t.stations[station.ID] = station
	return nil
}

func (t *memoryTx) SaveWorker(ctx context.Context, worker domain.Worker) error {
	if t.workers == nil {
		t.workers = make(map[string]domain.Worker)
	}
	t.workers[worker.ID] = worker
	return nil
}

func (t *memoryTx) Bin(ctx context.Context, id string) (domain.Bin, error) {
	if b, ok := t.bins[id]; ok {
		return b, nil
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	b, ok := t.store.bins[id]
	if !ok {
		return domain.Bin{}, port.ErrNotFound
	}
	return b, nil
}

func (t *memoryTx) SaveBin(ctx context.Context, bin domain.Bin) error {
	if t.bins == nil {
		t.bins = make(map[string]domain.Bin)
	}
	t.bins[bin.ID] = bin
	return nil
}

func (t *memoryTx) Assembly(ctx context.Context, id string) (domain.Assembly, error) {
	if a, ok := t.assemblies[id]; ok {
		return a, nil
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	a, ok := t.store.assemblies[id]
	if !ok {
		return domain.Assembly{}, port.ErrNotFound
	}
	return a, nil
}

func (t *memoryTx) SaveAssembly(ctx context.Context, assembly domain.Assembly) error {
	if t.assemblies == nil {
		t.assemblies = make(map[string]domain.Assembly)
	}
	t.assemblies[assembly.ID] = assembly
	return nil
}

func (t *memoryTx) Order(ctx context.Context, id string) (domain.Order, error) {
	if o, ok := t.orders[id]; ok {
		return o, nil
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	o, ok := t.store.orders[id]
	if !ok {
		return domain.Order{}, port.ErrNotFound
	}
	return o, nil
}

func (t *memoryTx) SaveOrder(ctx context.Context, order domain.Order) error {
	if t.orders == nil {
		t.orders = make(map[string]domain.Order)
	}
	t.orders[order.ID] = order
	return nil
}

func (t *memoryTx) OpenNotification(ctx context.Context, binID string) (domain.Notification, bool, error) {
	// Staged writes shadow committed rows of the same ID.
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	for id, n := range t.store.notifications {
		if staged, ok := t.notifications[id]; ok {
			n = staged
		}
		if n.BinID == binID && !n.Resolved {
			return n, true, nil
		}
	}
	for id, n := range t.notifications {
		if _, committed := t.store.notifications[id]; committed {
			continue
		}
		if n.BinID == binID && !n.Resolved {
			return n, true, nil
		}
	}
	return domain.Notification{}, false, nil
}

func (t *memoryTx) SaveNotification(ctx context.Context, n domain.Notification) error {
	if t.notifications == nil {
		t.notifications = make(map[string]domain.Notification)
	}
	t.notifications[n.ID] = n
	return nil
}

// Read-side queries over committed state.

func (s *MemoryStore) Part(ctx context.Context, id string) (domain.Part, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.parts[id]
	if !ok {
		return domain.Part{}, port.ErrNotFound
	}
	return p, nil
}

func (s *MemoryStore) Parts(ctx context.Context) ([]domain.Part, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Part, 0, len(s.parts))
	for _, p := range s.parts {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryStore) Station(ctx context.Context, id string) (domain.Station, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.stations[id]
	if !ok {
		return domain.Station{}, port.ErrNotFound
	}
	return st, nil
}

func (s *MemoryStore) Stations(ctx context.Context) ([]domain.Station, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Station, 0, len(s.stations))
	for _, st := range s.stations {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryStore) Worker(ctx context.Context, id string) (domain.Worker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.workers[id]
	if !ok {
		return domain.Worker{}, port.ErrNotFound
	}
	return w, nil
}

func (s *MemoryStore) Workers(ctx context.Context) ([]domain.Worker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Worker, 0, len(s.workers))
	for _, w := range s.workers {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryStore) Bin(ctx context.Context, id string) (domain.Bin, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bins[id]
	if !ok {
		return domain.Bin{}, port.ErrNotFound
	}
	return b, nil
}

func (s *MemoryStore) Bins(ctx context.Context) ([]domain.Bin, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Bin, 0, len(s.bins))
	for _, b := range s.bins {
		out = append(out, b)
	}
	sortBins(out)
	return out, nil
}

func (s *MemoryStore) StationBins(ctx context.Context, stationID string) ([]domain.Bin, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Bin
	for _, b := range s.bins {
		if b.StationID == stationID {
			out = append(out, b)
		}
	}
	sortBins(out)
	return out, nil
}

func (s *MemoryStore) Order(ctx context.Context, id string) (domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	if !ok {
		return domain.Order{}, port.ErrNotFound
	}
	return o, nil
}

func (s *MemoryStore) Assembly(ctx context.Context, id string) (domain.Assembly, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.assemblies[id]
	if !ok {
		return domain.Assembly{}, port.ErrNotFound
	}
	return a, nil
}

func (s *MemoryStore) StationAssemblies(ctx context.Context, stationID string) ([]domain.Assembly, error) {
	return s.assembliesWhere(func(a domain.Assembly) bool { return a.StationID == stationID })
}

func (s *MemoryStore) OrderAssemblies(ctx context.Context, orderID string) ([]domain.Assembly, error) {
	return s.assembliesWhere(func(a domain.Assembly) bool { return a.OrderID == orderID })
}

func (s *MemoryStore) assembliesWhere(keep func(domain.Assembly) bool) ([]domain.Assembly, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Assembly
	for _, a := range s.assemblies {
		if keep(a) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out, nil
}

func (s *MemoryStore) OpenNotifications(ctx context.Context, binID string) ([]domain.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Notification
	for _, n := range s.notifications {
		if n.Resolved {
			continue
		}
		if binID != "" && n.BinID != binID {
			continue
		}
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func sortBins(bins []domain.Bin) {
	sort.Slice(bins, func(i, j int) bool {
		if bins[i].StationID == bins[j].StationID {
			return bins[i].PartID < bins[j].PartID
		}
		return bins[i].StationID < bins[j].StationID
	})
}
