// Package submission delivers completed search forms to the lead backend.
// Every submission is first written to the local backup store so it can be
// recovered when delivery fails.
package submission

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"finitefield.org/trademark-web/internal/backup"
	"finitefield.org/trademark-web/internal/catalog"
	"finitefield.org/trademark-web/internal/uploads"
	"finitefield.org/trademark-web/internal/wizard"
)

// FormType identifies submissions from the free search wizard.
const FormType = "free_search"

// Policy decides what a failed delivery means to the visitor.
type Policy string

const (
	// PolicyLenient reports success after a failed delivery; the backup holds the lead.
	PolicyLenient Policy = "lenient"
	// PolicyStrict surfaces delivery failures as errors.
	PolicyStrict Policy = "strict"
)

// ParsePolicy validates raw configuration.
func ParsePolicy(raw string) (Policy, bool) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(raw))); p {
	case PolicyLenient, PolicyStrict:
		return p, true
	default:
		return "", false
	}
}

// ErrDeliveryFailed wraps delivery errors under the strict policy.
var ErrDeliveryFailed = errors.New("submission: delivery failed")

// Attachments resolves stashed uploads.
type Attachments interface {
	Get(ctx context.Context, id string) (uploads.File, error)
}

// Deps wires a Pipeline.
type Deps struct {
	Sender       Sender
	Backups      backup.Store
	Uploads      Attachments
	Catalog      *catalog.Catalog
	Logger       *zap.Logger
	Policy       Policy
	Preview      bool
	PreviewDelay time.Duration
	Now          func() time.Time
	NewID        func() string
	// Meter records delivery counters; nil uses the global meter provider.
	Meter metric.Meter
}

// Result describes a finished submission.
type Result struct {
	SearchID    string
	SubmittedAt time.Time
	Delivered   bool
	Preview     bool
	DeliveryErr error
	BackupErr   error
}

// Pipeline runs submissions.
type Pipeline struct {
	deps    Deps
	metrics instruments
}

// NewPipeline constructs a Pipeline. Without a Sender it always runs in preview mode.
func NewPipeline(deps Deps) *Pipeline {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Policy == "" {
		deps.Policy = PolicyLenient
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.NewID == nil {
		deps.NewID = func() string { return ulid.Make().String() }
	}
	if deps.Sender == nil {
		deps.Preview = true
	}
	return &Pipeline{deps: deps, metrics: newInstruments(deps.Meter, deps.Logger)}
}

// Policy reports the configured failure policy.
func (p *Pipeline) Policy() Policy { return p.deps.Policy }

// Preview reports whether deliveries are simulated.
func (p *Pipeline) Preview() bool { return p.deps.Preview }

// Submit validates the form, backs it up and delivers it. Validation
// failures are returned as wizard.FieldErrors before anything is written.
func (p *Pipeline) Submit(ctx context.Context, form wizard.FormState) (Result, error) {
	form.Normalize()
	if err := form.ReadyToSubmit(); err != nil {
		return Result{}, err
	}

	now := p.deps.Now().UTC()
	res := Result{SearchID: p.deps.NewID(), SubmittedAt: now}
	logger := p.deps.Logger.With(zap.String("search_id", res.SearchID))

	form.UpdatedAt = now
	formData, err := json.Marshal(form)
	if err != nil {
		return Result{}, fmt.Errorf("submission: encode form: %w", err)
	}
	res.BackupErr = p.backup(ctx, res.SearchID, formData, now)
	if res.BackupErr != nil {
		logger.Warn("backup snapshot failed", zap.Error(res.BackupErr))
	}

	if p.deps.Preview {
		res.Preview = true
		if err := p.previewWait(ctx); err != nil {
			return Result{}, err
		}
		logger.Info("submission simulated in preview mode")
		return res, nil
	}

	payload, err := p.payload(ctx, res.SearchID, form, formData, logger)
	if err != nil {
		return Result{}, err
	}
	if err := p.deps.Sender.Send(ctx, payload); err != nil {
		return p.deliveryFailed(ctx, res, err, logger)
	}
	res.Delivered = true
	p.metrics.delivered(ctx, "submit")
	p.markDelivered(ctx, res.SearchID, logger)
	logger.Info("submission delivered", zap.Int("countries", len(form.Countries)), zap.Int("files", len(payload.Files)))
	return res, nil
}

// Resubmit replays a backed-up submission under its original id. File
// contents are not part of backups, so only form fields are sent. Failures
// are always returned, regardless of policy.
func (p *Pipeline) Resubmit(ctx context.Context, snap backup.Snapshot) (Result, error) {
	if p.deps.Sender == nil {
		return Result{}, errors.New("submission: no backend configured")
	}
	var form wizard.FormState
	if err := json.Unmarshal(snap.FormData, &form); err != nil {
		return Result{}, fmt.Errorf("submission: decode snapshot %s: %w", snap.Key(), err)
	}
	logger := p.deps.Logger.With(zap.String("search_id", snap.SearchID))
	res := Result{SearchID: snap.SearchID, SubmittedAt: p.deps.Now().UTC()}
	form.Image = nil
	form.Files = nil

	payload, err := p.payload(ctx, snap.SearchID, form, snap.FormData, logger)
	if err != nil {
		return Result{}, err
	}
	if err := p.deps.Sender.Send(ctx, payload); err != nil {
		res.DeliveryErr = err
		p.metrics.failed(ctx, "resubmit", PolicyStrict, false)
		return res, fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
	}
	res.Delivered = true
	p.metrics.delivered(ctx, "resubmit")
	p.markDelivered(ctx, snap.SearchID, logger)
	return res, nil
}

func (p *Pipeline) backup(ctx context.Context, id string, formData []byte, now time.Time) error {
	if p.deps.Backups == nil {
		return nil
	}
	return p.deps.Backups.Save(ctx, backup.Snapshot{SearchID: id, FormData: formData, Timestamp: now})
}

func (p *Pipeline) markDelivered(ctx context.Context, id string, logger *zap.Logger) {
	if p.deps.Backups == nil {
		return
	}
	if err := p.deps.Backups.MarkDelivered(ctx, id, p.deps.Now()); err != nil {
		logger.Warn("mark backup delivered failed", zap.Error(err))
	}
}

func (p *Pipeline) deliveryFailed(ctx context.Context, res Result, err error, logger *zap.Logger) (Result, error) {
	res.DeliveryErr = err
	strict := p.deps.Policy == PolicyStrict
	p.metrics.failed(ctx, "submit", p.deps.Policy, !strict)
	if strict {
		logger.Error("submission delivery failed", zap.Error(err))
		return res, fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
	}
	logger.Warn("submission delivery failed; lead kept in local backup", zap.Error(err))
	return res, nil
}

func (p *Pipeline) previewWait(ctx context.Context) error {
	if p.deps.PreviewDelay <= 0 {
		return nil
	}
	timer := time.NewTimer(p.deps.PreviewDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pipeline) payload(ctx context.Context, id string, form wizard.FormState, formData []byte, logger *zap.Logger) (Payload, error) {
	countries, err := json.Marshal(form.Countries)
	if err != nil {
		return Payload{}, fmt.Errorf("submission: encode countries: %w", err)
	}
	fields := []Field{
		{"searchId", id},
		{"formType", FormType},
		{"formData", string(formData)},
		{"markType", string(form.MarkType)},
		{"markName", form.MarkName},
		{"goodsServices", form.GoodsServices},
		{"countries", string(countries)},
		{"currency", string(form.Currency)},
		{"firstName", form.Contact.FirstName},
		{"lastName", form.Contact.LastName},
		{"email", form.Contact.Email},
		{"phone", form.Contact.Phone},
		{"company", form.Contact.Company},
		{"marketingOptIn", strconv.FormatBool(form.Contact.MarketingOptIn)},
		{"termsAccepted", strconv.FormatBool(form.Contact.TermsAccepted)},
	}
	if p.deps.Catalog != nil {
		fields = append(fields, Field{"estimatedTotal", strconv.FormatInt(form.Estimate(p.deps.Catalog).Total(), 10)})
	}

	out := Payload{SearchID: id, Fields: fields}
	if form.Image != nil {
		if part, ok := p.filePart(ctx, "logo", *form.Image, logger); ok {
			out.Files = append(out.Files, part)
		}
	}
	for _, att := range form.Files {
		if part, ok := p.filePart(ctx, "files[]", att, logger); ok {
			out.Files = append(out.Files, part)
		}
	}
	return out, nil
}

func (p *Pipeline) filePart(ctx context.Context, field string, att wizard.Attachment, logger *zap.Logger) (FilePart, bool) {
	if p.deps.Uploads == nil {
		return FilePart{}, false
	}
	f, err := p.deps.Uploads.Get(ctx, att.ID)
	if err != nil {
		logger.Warn("attachment unavailable; submitting without it", zap.String("upload_id", att.ID), zap.Error(err))
		return FilePart{}, false
	}
	return FilePart{Field: field, Filename: f.Filename, ContentType: f.ContentType, Data: f.Data}, true
}
