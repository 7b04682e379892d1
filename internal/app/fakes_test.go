package app

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/Guilhem-Bonnet/Anime-Auto-Encoder/internal/domain"
	"github.com/Guilhem-Bonnet/Anime-Auto-Encoder/internal/naming"
	"github.com/Guilhem-Bonnet/Anime-Auto-Encoder/internal/ports"
)

type msgOp struct {
	kind    string
	chatID  int64
	id      int64
	text    string
	buttons domain.Keyboard
}

type fakeMessenger struct {
	mu        sync.Mutex
	nextID    int64
	ops       []msgOp
	failPhoto error
	failSend  error
	failCopy  error
}

func (m *fakeMessenger) record(op msgOp) {
	m.ops = append(m.ops, op)
}

func (m *fakeMessenger) SendPhoto(_ context.Context, chatID int64, photo string, caption string) (domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failPhoto != nil {
		return domain.Message{}, m.failPhoto
	}
	m.nextID++
	m.record(msgOp{kind: "photo", chatID: chatID, id: m.nextID, text: caption})
	return domain.Message{ChatID: chatID, ID: m.nextID, Text: caption, Photo: photo}, nil
}

func (m *fakeMessenger) SendMessage(_ context.Context, chatID int64, text string) (domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSend != nil {
		return domain.Message{}, m.failSend
	}
	m.nextID++
	m.record(msgOp{kind: "send", chatID: chatID, id: m.nextID, text: text})
	return domain.Message{ChatID: chatID, ID: m.nextID, Text: text}, nil
}

func (m *fakeMessenger) EditMessage(_ context.Context, msg domain.Message, text string, buttons domain.Keyboard) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record(msgOp{kind: "edit", chatID: msg.ChatID, id: msg.ID, text: text, buttons: buttons})
	return nil
}

func (m *fakeMessenger) DeleteMessage(_ context.Context, msg domain.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record(msgOp{kind: "delete", chatID: msg.ChatID, id: msg.ID})
	return nil
}

func (m *fakeMessenger) CopyMessage(_ context.Context, msg domain.Message, toChatID int64) (domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCopy != nil {
		return domain.Message{}, m.failCopy
	}
	m.nextID++
	m.record(msgOp{kind: "copy", chatID: toChatID, id: msg.ID})
	return domain.Message{ChatID: toChatID, ID: m.nextID}, nil
}

func (m *fakeMessenger) GetMessage(_ context.Context, chatID int64, id int64) (domain.Message, error) {
	return domain.Message{ChatID: chatID, ID: id}, nil
}

func (m *fakeMessenger) find(kind string, id int64) []msgOp {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []msgOp
	for _, op := range m.ops {
		if op.kind == kind && (id == 0 || op.id == id) {
			out = append(out, op)
		}
	}
	return out
}

type fakeFiles struct {
	mu      sync.Mutex
	saved   []string
	removed []string
	failErr error
}

func (f *fakeFiles) Save(_ context.Context, source string, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failErr != nil {
		return "", f.failErr
	}
	f.saved = append(f.saved, source)
	return "/work/" + name, nil
}

func (f *fakeFiles) Remove(path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, path)
	return nil
}

func (f *fakeFiles) removedCount(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, p := range f.removed {
		if p == path {
			n++
		}
	}
	return n
}

type encodeCall struct {
	input   string
	output  string
	quality string
}

type fakeEncoder struct {
	mu      sync.Mutex
	calls   []encodeCall
	failOn  string
	panicOn string
	// hook appelé pendant l'encodage, slot détenu.
	during func()
}

func (e *fakeEncoder) Encode(_ context.Context, _ domain.Message, input string, outputName string, q domain.QualityProfile) (string, error) {
	e.mu.Lock()
	e.calls = append(e.calls, encodeCall{input: input, output: outputName, quality: q.Name})
	during := e.during
	e.mu.Unlock()
	if during != nil {
		during()
	}
	if q.Name == e.panicOn {
		panic("encoder exploded")
	}
	if q.Name == e.failOn {
		return "", errors.New("ffmpeg exited with status 1")
	}
	return "/work/encode/" + outputName, nil
}

type fakeUploader struct {
	mu     sync.Mutex
	paths  []string
	failOn string
}

func (u *fakeUploader) Upload(_ context.Context, _ domain.Message, path string, q domain.QualityProfile) (domain.UploadedFile, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if q.Name == u.failOn {
		return domain.UploadedFile{}, errors.New("upload refused")
	}
	u.paths = append(u.paths, path)
	n := int64(len(u.paths))
	return domain.UploadedFile{MessageID: 100 + n, FileSize: n * 1_500_000}, nil
}

type fakeResolver struct {
	meta domain.AnimeMetadata
	err  error
}

func (r fakeResolver) Resolve(context.Context, naming.ParsedName) (domain.AnimeMetadata, error) {
	return r.meta, r.err
}

type reportEntry struct {
	severity ports.Severity
	message  string
}

type fakeReporter struct {
	mu      sync.Mutex
	entries []reportEntry
}

func (r *fakeReporter) Report(_ context.Context, severity ports.Severity, message string, _ bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, reportEntry{severity: severity, message: message})
}

func (r *fakeReporter) bySeverity(s ports.Severity) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.entries {
		if e.severity == s {
			out = append(out, e.message)
		}
	}
	return out
}

type memRunRepo struct {
	mu   sync.Mutex
	runs map[string]domain.Run
}

func newMemRunRepo() *memRunRepo {
	return &memRunRepo{runs: map[string]domain.Run{}}
}

func (r *memRunRepo) Create(_ context.Context, run domain.Run) (domain.Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.runs[run.ID]; ok {
		return domain.Run{}, ports.ErrConflict
	}
	r.runs[run.ID] = run
	return run, nil
}

func (r *memRunRepo) Get(_ context.Context, id string) (domain.Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id]
	if !ok {
		return domain.Run{}, ports.ErrNotFound
	}
	return run, nil
}

func (r *memRunRepo) List(_ context.Context, limit int) ([]domain.Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Run, 0, len(r.runs))
	for _, run := range r.runs {
		out = append(out, run)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memRunRepo) mutate(id string, fn func(*domain.Run) error) (domain.Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id]
	if !ok {
		return domain.Run{}, ports.ErrNotFound
	}
	if err := fn(&run); err != nil {
		return domain.Run{}, err
	}
	r.runs[id] = run
	return run, nil
}

func (r *memRunRepo) UpdateState(_ context.Context, id string, expected, next domain.RunState) (domain.Run, error) {
	if !domain.CanTransition(expected, next) {
		return domain.Run{}, domain.ErrInvalidTransition
	}
	return r.mutate(id, func(run *domain.Run) error {
		if run.State != expected {
			return ports.ErrNotFound
		}
		run.State = next
		return nil
	})
}

func (r *memRunRepo) SetAnnouncement(_ context.Context, id string, announcementID int64) (domain.Run, error) {
	return r.mutate(id, func(run *domain.Run) error {
		run.AnnouncementID = announcementID
		return nil
	})
}

func (r *memRunRepo) AddQuality(_ context.Context, id string, quality string) (domain.Run, error) {
	return r.mutate(id, func(run *domain.Run) error {
		run.Qualities = append(run.Qualities, quality)
		return nil
	})
}

func (r *memRunRepo) UpdateError(_ context.Context, id string, code string, message string) (domain.Run, error) {
	return r.mutate(id, func(run *domain.Run) error {
		run.ErrorCode = code
		run.ErrorMessage = message
		return nil
	})
}
