package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type ticketState int

const (
	ticketPending ticketState = iota
	ticketSignaled
	ticketConsumed
	ticketWithdrawn
)

func (s ticketState) String() string {
	switch s {
	case ticketPending:
		return "pending"
	case ticketSignaled:
		return "signaled"
	case ticketConsumed:
		return "consumed"
	case ticketWithdrawn:
		return "withdrawn"
	default:
		return "unknown"
	}
}

// Ticket représente une demande d'accès au slot d'encodage.
// Le grant est à tir unique : granted est fermé une seule fois, withdrawn
// l'est quand le ticket quitte la file sans avoir été servi.
type Ticket struct {
	ID        int64
	granted   chan struct{}
	withdrawn chan struct{}
	state     ticketState // protégé par AdmissionQueue.mu
}

type AdmissionOptions struct {
	// Pause avant de signaler la tête de file.
	GrantDelay time.Duration
	// Pause après le grant, avant d'attendre la libération.
	SettleDelay time.Duration
	// Pause après chaque libération avant le grant suivant.
	Cooldown time.Duration
}

func DefaultAdmissionOptions() AdmissionOptions {
	return AdmissionOptions{
		GrantDelay:  1500 * time.Millisecond,
		SettleDelay: 1500 * time.Millisecond,
		Cooldown:    10 * time.Second,
	}
}

type AdmissionSnapshot struct {
	Busy    bool    `json:"busy"`
	Holder  int64   `json:"holder,omitempty"`
	Pending []int64 `json:"pending"`
}

// AdmissionQueue sérialise l'accès au slot d'encodage unique.
// Les grants suivent strictement l'ordre d'arrivée et le grant vaut
// acquisition du slot : au plus un ticket est Signaled à la fois.
type AdmissionQueue struct {
	logger  zerolog.Logger
	opts    AdmissionOptions
	metrics *Metrics

	mu      sync.Mutex
	tickets map[int64]*Ticket
	fifo    []int64
	holder  *Ticket
	notify  chan struct{}

	sleep func(ctx context.Context, d time.Duration) error
}

func NewAdmissionQueue(logger zerolog.Logger, metrics *Metrics, opts AdmissionOptions) *AdmissionQueue {
	for _, d := range []*time.Duration{&opts.GrantDelay, &opts.SettleDelay, &opts.Cooldown} {
		if *d < 0 {
			*d = 0
		}
	}
	return &AdmissionQueue{
		logger:  logger,
		opts:    opts,
		metrics: metrics,
		tickets: map[int64]*Ticket{},
		notify:  make(chan struct{}),
		sleep:   sleepCtx,
	}
}

// Submit enregistre un ticket Pending en queue de file.
func (q *AdmissionQueue) Submit(id int64) (*Ticket, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.tickets[id]; ok {
		return nil, ErrDuplicateTicket
	}
	t := &Ticket{ID: id, granted: make(chan struct{}), withdrawn: make(chan struct{}), state: ticketPending}
	q.tickets[id] = t
	q.fifo = append(q.fifo, id)
	q.changedLocked()
	return t, nil
}

// Wait bloque jusqu'au grant. Si ctx expire avant, le ticket est retiré ;
// si le grant est arrivé entre-temps, le slot est rendu. Un ticket relâché
// avant son grant renvoie ErrTicketWithdrawn.
func (q *AdmissionQueue) Wait(ctx context.Context, t *Ticket) error {
	select {
	case <-t.granted:
		return nil
	case <-t.withdrawn:
		return ErrTicketWithdrawn
	default:
	}
	select {
	case <-t.granted:
		return nil
	case <-t.withdrawn:
		return ErrTicketWithdrawn
	case <-ctx.Done():
		q.withdraw(t)
		return ctx.Err()
	}
}

// Release rend le slot. Idempotent ; sur un ticket jamais servi il le
// retire de la file.
func (q *AdmissionQueue) Release(t *Ticket) {
	if t == nil {
		return
	}
	q.withdraw(t)
}

func (q *AdmissionQueue) withdraw(t *Ticket) {
	q.mu.Lock()
	defer q.mu.Unlock()
	switch t.state {
	case ticketPending:
		t.state = ticketWithdrawn
		close(t.withdrawn)
		q.removeLocked(t.ID)
	case ticketSignaled:
		t.state = ticketConsumed
		if q.holder == t {
			q.holder = nil
		}
	default:
		return
	}
	if q.tickets[t.ID] == t {
		delete(q.tickets, t.ID)
	}
	q.changedLocked()
}

func (q *AdmissionQueue) removeLocked(id int64) {
	for i, v := range q.fifo {
		if v == id {
			q.fifo = append(q.fifo[:i], q.fifo[i+1:]...)
			return
		}
	}
}

func (q *AdmissionQueue) Busy() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.holder != nil
}

func (q *AdmissionQueue) Snapshot() AdmissionSnapshot {
	q.mu.Lock()
	defer q.mu.Unlock()
	s := AdmissionSnapshot{Busy: q.holder != nil, Pending: append([]int64{}, q.fifo...)}
	if q.holder != nil {
		s.Holder = q.holder.ID
	}
	return s
}

// Run est la boucle de grant ; elle rend la main à l'annulation de ctx.
func (q *AdmissionQueue) Run(ctx context.Context) error {
	q.logger.Info().Msg("admission loop started")
	defer q.logger.Info().Msg("admission loop stopped")

	for {
		id, err := q.waitHead(ctx)
		if err != nil {
			return nil
		}
		if err := q.sleep(ctx, q.opts.GrantDelay); err != nil {
			return nil
		}

		granted, err := q.grantHead(id)
		var fault *AdmissionFaultError
		if errors.As(err, &fault) {
			q.logger.Error().Err(err).Int64("ticket", fault.ID).Msg("dropping unregistered ticket")
			continue
		}
		if !granted {
			// La tête a été retirée pendant la pause.
			continue
		}
		q.logger.Debug().Int64("ticket", id).Msg("encode slot granted")

		if err := q.sleep(ctx, q.opts.SettleDelay); err != nil {
			return nil
		}
		if err := q.waitReleased(ctx); err != nil {
			return nil
		}
		if err := q.sleep(ctx, q.opts.Cooldown); err != nil {
			return nil
		}
	}
}

// waitHead attend une file non vide et un slot libre, et renvoie la tête.
func (q *AdmissionQueue) waitHead(ctx context.Context) (int64, error) {
	for {
		q.mu.Lock()
		if len(q.fifo) > 0 && q.holder == nil {
			id := q.fifo[0]
			q.mu.Unlock()
			return id, nil
		}
		ch := q.notify
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-ch:
		}
	}
}

func (q *AdmissionQueue) waitReleased(ctx context.Context) error {
	for {
		q.mu.Lock()
		if q.holder == nil {
			q.mu.Unlock()
			return nil
		}
		ch := q.notify
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
		}
	}
}

// grantHead signale id s'il est toujours en tête et que le slot est libre.
func (q *AdmissionQueue) grantHead(id int64) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.holder != nil || len(q.fifo) == 0 || q.fifo[0] != id {
		return false, nil
	}
	q.fifo = q.fifo[1:]
	t, ok := q.tickets[id]
	if !ok {
		q.changedLocked()
		return false, &AdmissionFaultError{ID: id}
	}
	t.state = ticketSignaled
	q.holder = t
	close(t.granted)
	q.changedLocked()
	return true, nil
}

func (q *AdmissionQueue) changedLocked() {
	q.metrics.setAdmission(len(q.fifo), q.holder != nil)
	// Réveille tous les waiters en fermant le channel et en le recréant.
	close(q.notify)
	q.notify = make(chan struct{})
}
