package app

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/rs/xid"
	"github.com/rs/zerolog"

	"github.com/Guilhem-Bonnet/Anime-Auto-Encoder/internal/domain"
	"github.com/Guilhem-Bonnet/Anime-Auto-Encoder/internal/naming"
	"github.com/Guilhem-Bonnet/Anime-Auto-Encoder/internal/ports"
)

var ErrInvalidSubmission = errors.New("invalid submission")

const (
	stageDownloading   = "Downloading..."
	stageQueued        = "Queued to Encode..."
	stageReadyToEncode = "Ready to Encode..."
	stageReadyToUpload = "Ready to Upload..."
)

// Submission est un fichier entrant : source (chemin local ou URL) et nom
// brut tel que publié par l'amont.
type Submission struct {
	Source string `json:"source"`
	Name   string `json:"name,omitempty"`
}

// Normalize complète Name depuis la source et valide la soumission.
func (s Submission) Normalize() (Submission, error) {
	s.Source = strings.TrimSpace(s.Source)
	s.Name = strings.TrimSpace(s.Name)
	if s.Source == "" {
		return s, fmt.Errorf("%w: source is required", ErrInvalidSubmission)
	}
	if s.Name == "" {
		s.Name = sourceBase(s.Source)
	}
	if s.Name == "" || s.Name == "." || s.Name == "/" {
		return s, fmt.Errorf("%w: cannot derive a file name from %q", ErrInvalidSubmission, s.Source)
	}
	return s, nil
}

func sourceBase(source string) string {
	if u, err := url.Parse(source); err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		if name, err := url.PathUnescape(path.Base(u.Path)); err == nil {
			return name
		}
		return path.Base(u.Path)
	}
	return filepath.Base(source)
}

type RunResult struct {
	RunID     string          `json:"runId"`
	State     domain.RunState `json:"state"`
	Published []string        `json:"published"`
	ErrorCode string          `json:"errorCode,omitempty"`
	Err       error           `json:"-"`
}

type metadataResolver interface {
	Resolve(ctx context.Context, p naming.ParsedName) (domain.AnimeMetadata, error)
}

type PipelineDeps struct {
	Resolver  metadataResolver
	Messenger ports.Messenger
	Files     ports.FileHandler
	Encoder   ports.Encoder
	Uploader  ports.Uploader
	Queue     *AdmissionQueue
	Backups   *BackupTracker
	Reporter  ports.Reporter
	// Runs est optionnel : sans historique le pipeline fonctionne à l'identique.
	Runs    *RunService
	Metrics *Metrics
}

type PipelineOptions struct {
	Settings domain.Settings
	// Attente maximale du slot d'encodage.
	GrantTimeout time.Duration
	// Pause entre deux publications successives.
	PublishDelay time.Duration
}

func DefaultPipelineOptions() PipelineOptions {
	return PipelineOptions{
		Settings:     domain.DefaultSettings(),
		GrantTimeout: 6 * time.Hour,
		PublishDelay: 1500 * time.Millisecond,
	}
}

// Pipeline mène chaque fichier de l'annonce à la publication de toutes
// ses qualités. Un run = une goroutine ; le slot d'encodage est partagé.
type Pipeline struct {
	parent context.Context
	logger zerolog.Logger
	deps   PipelineDeps
	opts   PipelineOptions

	wg    sync.WaitGroup
	sleep func(ctx context.Context, d time.Duration) error
}

func NewPipeline(parent context.Context, logger zerolog.Logger, deps PipelineDeps, opts PipelineOptions) *Pipeline {
	if parent == nil {
		parent = context.Background()
	}
	if opts.GrantTimeout <= 0 {
		opts.GrantTimeout = DefaultPipelineOptions().GrantTimeout
	}
	if opts.PublishDelay < 0 {
		opts.PublishDelay = 0
	}
	return &Pipeline{
		parent: parent,
		logger: logger,
		deps:   deps,
		opts:   opts,
		sleep:  sleepCtx,
	}
}

type fileRun struct {
	id      string
	sub     Submission
	logger  zerolog.Logger
	state   domain.RunState
	history bool

	parsed       naming.ParsedName
	meta         domain.AnimeMetadata
	caption      string
	announcement domain.Message
	status       *domain.Message
	workFile     string
	ticket       *Ticket
	buttons      domain.Keyboard
	published    []string
}

// Start enregistre le run puis le traite en tâche de fond, sous le contexte
// du pipeline : ctx ne borne que l'enregistrement.
func (p *Pipeline) Start(ctx context.Context, sub Submission) (string, error) {
	sub, err := sub.Normalize()
	if err != nil {
		return "", err
	}
	r := p.newRun(ctx, sub)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.run(p.parent, r)
	}()
	return r.id, nil
}

// Process traite un fichier de bout en bout et ne renvoie qu'une fois le run
// terminé. Aucune erreur ni panique ne remonte : tout est dans RunResult.
func (p *Pipeline) Process(ctx context.Context, sub Submission) RunResult {
	sub, err := sub.Normalize()
	if err != nil {
		return RunResult{State: domain.RunFailed, ErrorCode: CodeDownloadFailure, Err: err}
	}
	return p.run(ctx, p.newRun(ctx, sub))
}

// Wait attend la fin des runs lancés par Start.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

func (p *Pipeline) newRun(ctx context.Context, sub Submission) *fileRun {
	r := &fileRun{sub: sub, state: domain.RunResolving}
	if p.deps.Runs != nil {
		created, err := p.deps.Runs.Create(ctx, sub.Name)
		if err == nil {
			r.id = created.ID
			r.history = true
		} else {
			p.logger.Warn().Err(err).Str("file", sub.Name).Msg("run history unavailable")
		}
	}
	if r.id == "" {
		r.id = xid.New().String()
	}
	r.logger = p.logger.With().Str("run_id", r.id).Str("file", sub.Name).Logger()
	return r
}

func (p *Pipeline) run(ctx context.Context, r *fileRun) (res RunResult) {
	defer func() {
		if v := recover(); v != nil {
			err := stageError(CodeInternal, fmt.Sprintf("panic: %v", v), nil)
			res = p.abort(ctx, r, err, string(debug.Stack()))
		}
	}()

	r.logger.Info().Str("source", r.sub.Source).Msg("run started")
	if err := p.execute(ctx, r); err != nil {
		return p.abort(ctx, r, err, "")
	}
	return p.complete(ctx, r)
}

func (p *Pipeline) execute(ctx context.Context, r *fileRun) error {
	set := p.opts.Settings

	// 1. Métadonnées : un échec dégrade l'annonce mais n'arrête pas le run.
	r.parsed = naming.Parse(r.sub.Name)
	meta, err := p.deps.Resolver.Resolve(ctx, r.parsed)
	if err != nil {
		if ctx.Err() != nil {
			return stageError(CodeMetadataFailure, "metadata resolution cancelled", err)
		}
		se := stageError(CodeMetadataFailure, "metadata resolution failed", err)
		r.logger.Warn().Err(se).Str("code", se.Code).Msg("continuing without metadata")
		p.report(ctx, ports.SeverityWarning, fmt.Sprintf("%s: %v", r.sub.Name, se))
		meta = domain.AnimeMetadata{}
	}
	r.meta = meta
	p.advance(ctx, r, domain.RunAnnouncing)

	// 2. Annonce puis message de statut.
	r.caption = naming.Caption(r.parsed, r.meta, set.Brand)
	ann, err := p.deps.Messenger.SendPhoto(ctx, set.MainChannel, naming.PosterURL(r.meta, set.Thumb), r.caption)
	if err != nil {
		return stageError(CodeAnnouncementFailure, "publish announcement", err)
	}
	r.announcement = ann
	p.setAnnouncement(ctx, r, ann.ID)
	if err := p.sleep(ctx, p.opts.PublishDelay); err != nil {
		return stageError(CodeAnnouncementFailure, "publish status", err)
	}
	status, err := p.deps.Messenger.SendMessage(ctx, set.MainChannel, naming.StatusText(r.sub.Name, stageDownloading))
	if err != nil {
		return stageError(CodeAnnouncementFailure, "publish status", err)
	}
	r.status = &status
	p.advance(ctx, r, domain.RunDownloading)

	// 3. Téléchargement.
	workFile, err := p.deps.Files.Save(ctx, r.sub.Source, r.sub.Name)
	if err != nil {
		return stageError(CodeDownloadFailure, "download "+r.sub.Source, err)
	}
	r.workFile = workFile
	p.advance(ctx, r, domain.RunQueued)

	// 4-6. File d'admission : le grant vaut détention du slot.
	if err := p.admit(ctx, r); err != nil {
		return err
	}
	p.advance(ctx, r, domain.RunEncoding)

	// 7. Qualités dans l'ordre configuré.
	for i, q := range set.Qualities {
		if i > 0 {
			p.advance(ctx, r, domain.RunEncoding)
		}
		if err := p.publishQuality(ctx, r, q); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) admit(ctx context.Context, r *fileRun) error {
	q := p.deps.Queue
	busy := q.Busy()
	ticket, err := q.Submit(r.announcement.ID)
	if err != nil {
		return stageError(CodeInternal, "submit admission ticket", err)
	}
	r.ticket = ticket
	if busy {
		p.editStatus(ctx, r, r.sub.Name, stageQueued)
		p.report(ctx, ports.SeverityInfo, "Added task to queue: "+r.sub.Name)
	}

	wctx, cancel := context.WithTimeout(ctx, p.opts.GrantTimeout)
	defer cancel()
	start := time.Now()
	if err := q.Wait(wctx, ticket); err != nil {
		if ctx.Err() != nil {
			return stageError(CodeAdmissionTimeout, "cancelled while waiting for the encode slot", err)
		}
		return stageError(CodeAdmissionTimeout, fmt.Sprintf("no encode slot after %s", p.opts.GrantTimeout), err)
	}
	r.logger.Info().Dur("waited", time.Since(start)).Msg("encode slot acquired")
	return nil
}

func (p *Pipeline) publishQuality(ctx context.Context, r *fileRun, q domain.QualityProfile) error {
	set := p.opts.Settings
	logger := r.logger.With().Str("quality", q.Name).Logger()
	upname := naming.UploadName(r.parsed, r.meta, q)

	p.editStatus(ctx, r, upname, stageReadyToEncode)
	if err := p.sleep(ctx, p.opts.PublishDelay); err != nil {
		return stageError(CodeEncodeFailure, "encode "+q.Name, err)
	}
	p.report(ctx, ports.SeverityInfo, "Starting encode: "+upname)

	start := time.Now()
	out, err := p.deps.Encoder.Encode(ctx, *r.status, r.workFile, upname, q)
	if err != nil {
		return stageError(CodeEncodeFailure, "encode "+q.Name, err)
	}
	p.deps.Metrics.observeEncode(q.Name, time.Since(start))
	logger.Info().Dur("took", time.Since(start)).Str("output", out).Msg("encoded")

	p.report(ctx, ports.SeverityInfo, "Successfully compressed, uploading: "+upname)
	p.editStatus(ctx, r, upname, stageReadyToUpload)
	if err := p.sleep(ctx, p.opts.PublishDelay); err != nil {
		return stageError(CodeUploadFailure, "upload "+q.Name, err)
	}
	p.advance(ctx, r, domain.RunUploading)

	uploaded, err := p.deps.Uploader.Upload(ctx, *r.status, out, q)
	if err != nil {
		p.removeFile(r, out)
		return stageError(CodeUploadFailure, "upload "+q.Name, err)
	}
	p.removeFile(r, out)
	p.report(ctx, ports.SeverityInfo, "Successfully uploaded: "+upname)

	link := DeepLink(set.LinkHost, set.BotUsername, uploaded.MessageID, set.StoreChannel)
	r.buttons = r.buttons.Append(domain.Button{Text: naming.ButtonText(q, uploaded.FileSize), URL: link})
	if err := p.deps.Messenger.EditMessage(ctx, r.announcement, r.caption, r.buttons); err != nil {
		// Le fichier est déjà publié : le bouton manquant n'annule pas le run.
		logger.Warn().Err(err).Msg("failed to update announcement buttons")
		p.report(ctx, ports.SeverityWarning, fmt.Sprintf("announcement update failed for %s: %v", upname, err))
	}
	r.published = append(r.published, q.Name)
	p.addQuality(ctx, r, q.Name)

	if p.deps.Backups != nil && len(set.BackupChannels) > 0 {
		p.deps.Backups.Schedule(domain.Message{ChatID: set.StoreChannel, ID: uploaded.MessageID}, set.BackupChannels)
	}
	return nil
}

func (p *Pipeline) complete(ctx context.Context, r *fileRun) RunResult {
	p.cleanup(ctx, r)
	p.advance(ctx, r, domain.RunCompleted)
	p.deps.Metrics.runFinished("completed")
	r.logger.Info().Strs("qualities", r.published).Msg("run completed")
	return RunResult{RunID: r.id, State: domain.RunCompleted, Published: r.published}
}

// abort termine un run en échec. Les qualités déjà publiées restent publiées.
func (p *Pipeline) abort(ctx context.Context, r *fileRun, err error, stack string) RunResult {
	code := ErrorCode(err)
	msg := fmt.Sprintf("%s: %v", r.sub.Name, err)
	if stack != "" {
		msg += "\n" + stack
	}
	r.logger.Error().Err(err).Str("code", code).Str("state", string(r.state)).Msg("run failed")
	p.report(ctx, ports.SeverityError, msg)

	p.cleanup(ctx, r)
	if r.history {
		cctx, cancel := detached(ctx)
		defer cancel()
		if _, ferr := p.deps.Runs.Fail(cctx, r.id, code, err.Error()); ferr != nil {
			r.logger.Warn().Err(ferr).Msg("failed to record run failure")
		}
	}
	r.state = domain.RunFailed
	p.deps.Metrics.runFinished("failed")
	return RunResult{RunID: r.id, State: domain.RunFailed, Published: r.published, ErrorCode: code, Err: err}
}

// cleanup rend le slot, retire le statut et supprime le fichier de travail.
func (p *Pipeline) cleanup(ctx context.Context, r *fileRun) {
	if r.ticket != nil {
		p.deps.Queue.Release(r.ticket)
	}
	cctx, cancel := detached(ctx)
	defer cancel()
	if r.status != nil {
		if err := p.deps.Messenger.DeleteMessage(cctx, *r.status); err != nil {
			r.logger.Warn().Err(err).Msg("failed to delete status message")
		}
		r.status = nil
	}
	if r.workFile != "" {
		p.removeFile(r, r.workFile)
		r.workFile = ""
	}
}

func (p *Pipeline) removeFile(r *fileRun, file string) {
	if err := p.deps.Files.Remove(file); err != nil {
		r.logger.Warn().Err(err).Str("path", file).Msg("failed to remove file")
	}
}

func (p *Pipeline) editStatus(ctx context.Context, r *fileRun, name, stage string) {
	if r.status == nil {
		return
	}
	if err := p.deps.Messenger.EditMessage(ctx, *r.status, naming.StatusText(name, stage), nil); err != nil {
		r.logger.Debug().Err(err).Str("stage", stage).Msg("status edit failed")
	}
}

func (p *Pipeline) report(ctx context.Context, severity ports.Severity, msg string) {
	report(ctx, p.deps.Reporter, severity, msg, true)
}

func (p *Pipeline) advance(ctx context.Context, r *fileRun, to domain.RunState) {
	from := r.state
	r.state = to
	if !r.history || from == to {
		return
	}
	if _, err := p.deps.Runs.Advance(ctx, r.id, from, to); err != nil {
		r.logger.Warn().Err(err).Str("from", string(from)).Str("to", string(to)).Msg("failed to record run state")
	}
}

func (p *Pipeline) setAnnouncement(ctx context.Context, r *fileRun, id int64) {
	if !r.history {
		return
	}
	if err := p.deps.Runs.SetAnnouncement(ctx, r.id, id); err != nil {
		r.logger.Warn().Err(err).Msg("failed to record announcement")
	}
}

func (p *Pipeline) addQuality(ctx context.Context, r *fileRun, quality string) {
	if !r.history {
		return
	}
	if err := p.deps.Runs.AddQuality(ctx, r.id, quality); err != nil {
		r.logger.Warn().Err(err).Msg("failed to record quality")
	}
}

// detached garde les valeurs de ctx sans son annulation, pour le nettoyage.
func detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
}
