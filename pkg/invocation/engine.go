package invocation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/CenterForOpenScience/gravyvalet/pkg/addon"
	gverrors "github.com/CenterForOpenScience/gravyvalet/pkg/errors"
	"github.com/CenterForOpenScience/gravyvalet/pkg/logger"
	"github.com/CenterForOpenScience/gravyvalet/pkg/models"
	"github.com/CenterForOpenScience/gravyvalet/pkg/storage"
)

// DefaultTimeout is the wall-clock deadline for one invocation, matched to
// the inbound signature window.
const DefaultTimeout = 110 * time.Second

// errorContextLimit caps the stored debugging context per invocation.
const errorContextLimit = 2000

// Engine drives operation invocations through their state machine.
type Engine struct {
	registry *addon.Registry
	store    storage.Store
	factory  *Factory
	queue    *Queue
	timeout  time.Duration
	metrics  *Metrics
}

// NewEngine wires an invocation engine. queue may be nil when deferred
// operations are not served (e.g. in the worker-less test harness);
// metrics may be nil to disable instrumentation.
func NewEngine(
	registry *addon.Registry,
	store storage.Store,
	factory *Factory,
	queue *Queue,
	timeout time.Duration,
	metrics *Metrics,
) *Engine {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Engine{
		registry: registry,
		store:    store,
		factory:  factory,
		queue:    queue,
		timeout:  timeout,
		metrics:  metrics,
	}
}

// Request describes one operation call.
type Request struct {
	// OperationName is the full wire name, e.g. "BOX:list_root_items".
	OperationName string

	Args json.RawMessage

	// UserID is the caller.
	UserID int64

	// AccountID targets a bare authorized account; ConfiguredAddonID, when
	// set, scopes the call to a configured addon instead (and its
	// connected capabilities).
	AccountID         int64
	ConfiguredAddonID *int64
}

// Invoke creates an invocation record and, for immediate and redirect
// operations, runs it synchronously. Deferred operations are enqueued and
// returned in STARTING. The returned invocation always reflects the
// persisted record; err reports why it went to PROBLEM, if it did.
func (e *Engine) Invoke(ctx context.Context, req Request) (*models.OperationInvocation, error) {
	provider, op, err := e.registry.ResolveOperation(req.OperationName)
	if err != nil {
		return nil, err
	}
	if !op.ImplementedBy(provider.Prototype) {
		return nil, gverrors.Newf(gverrors.KindNotFound,
			"provider %s does not implement %s", provider.Name, op.Name)
	}

	account, configured, err := e.resolveTarget(ctx, req)
	if err != nil {
		return nil, err
	}
	service, err := e.store.GetService(ctx, account.ExternalServiceID)
	if err != nil {
		return nil, err
	}
	if service.ProviderName != provider.Name {
		return nil, gverrors.Newf(gverrors.KindInvalidArguments,
			"operation %s does not belong to a %s account", req.OperationName, service.ProviderName)
	}

	caps := account.AuthorizedCapabilities
	if configured != nil {
		caps = configured.ConnectedCapabilities
	}
	if !caps.Contains(op.Capability) {
		return nil, gverrors.Forbidden(fmt.Sprintf(
			"operation %s needs capability %s, target grants %s",
			req.OperationName, op.Capability, caps))
	}

	inv := &models.OperationInvocation{
		ID:                  uuid.NewString(),
		Status:              models.StatusStarting,
		OperationName:       req.OperationName,
		Args:                req.Args,
		ByUserID:            req.UserID,
		AuthorizedAccountID: account.ID,
		ConfiguredAddonID:   req.ConfiguredAddonID,
	}
	if err := e.store.CreateInvocation(ctx, inv); err != nil {
		return nil, err
	}

	if err := op.ValidateArgs(req.Args); err != nil {
		e.recordProblem(ctx, inv, err, time.Time{})
		return inv, err
	}

	if op.Mode == addon.ModeDeferred {
		if e.queue == nil {
			err := gverrors.Newf(gverrors.KindUnexpectedAddonError,
				"deferred operations are not enabled")
			e.recordProblem(ctx, inv, err, time.Time{})
			return inv, err
		}
		if err := e.queue.Enqueue(ctx, inv.ID); err != nil {
			e.recordProblem(ctx, inv, err, time.Time{})
			return inv, err
		}
		return inv, nil
	}

	if err := e.Execute(ctx, inv); err != nil {
		return inv, err
	}
	return inv, nil
}

func (e *Engine) resolveTarget(ctx context.Context, req Request) (*models.AuthorizedAccount, *models.ConfiguredAddon, error) {
	var configured *models.ConfiguredAddon
	accountID := req.AccountID
	if req.ConfiguredAddonID != nil {
		var err error
		configured, err = e.store.GetConfiguredAddon(ctx, *req.ConfiguredAddonID)
		if err != nil {
			return nil, nil, notFoundOr(err, "configured addon")
		}
		accountID = configured.AuthorizedAccountID
	}

	account, err := e.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, nil, notFoundOr(err, "authorized account")
	}

	// Bare-account calls are owner-only; configured addons are reachable by
	// any active user with access to the resource (resource-level access is
	// enforced upstream).
	if configured == nil && account.UserReferenceID != req.UserID {
		return nil, nil, gverrors.Forbidden("account belongs to another user")
	}

	owner, err := e.store.GetUser(ctx, account.UserReferenceID)
	if err != nil {
		return nil, nil, err
	}
	if !owner.Active() {
		return nil, nil, gverrors.Forbidden("account owner is deactivated")
	}
	return account, configured, nil
}

func notFoundOr(err error, what string) error {
	if errors.Is(err, storage.ErrNotFound) {
		return gverrors.NotFound(what + " not found")
	}
	return err
}

// Execute runs a STARTING invocation through its terminal state. It fails
// fast with a DibsDenied error when another worker holds the record;
// operation failures are recorded on the invocation, not returned.
func (e *Engine) Execute(ctx context.Context, inv *models.OperationInvocation) error {
	if err := e.store.ClaimInvocation(ctx, inv.ID); err != nil {
		if errors.Is(err, storage.ErrStaleStatus) {
			return gverrors.DibsDenied(fmt.Sprintf("invocation %s is already claimed", inv.ID))
		}
		return err
	}
	inv.Status = models.StatusInProgress
	started := time.Now()

	provider, op, err := e.registry.ResolveOperation(inv.OperationName)
	if err != nil {
		e.recordProblem(ctx, inv, err, started)
		return nil
	}

	account, configured, err := e.loadTarget(ctx, inv)
	if err != nil {
		e.recordProblem(ctx, inv, err, started)
		return nil
	}
	service, err := e.store.GetService(ctx, account.ExternalServiceID)
	if err != nil {
		e.recordProblem(ctx, inv, err, started)
		return nil
	}

	opCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	imp, err := e.factory.Instantiate(opCtx, provider, account, service, configured)
	if err != nil {
		e.recordProblem(ctx, inv, err, started)
		return nil
	}

	result, err := op.Invoke(opCtx, imp, inv.Args)
	if err != nil {
		e.recordProblem(ctx, inv, deadlineKind(opCtx, err), started)
		return nil
	}

	payload, err := json.Marshal(result)
	if err != nil {
		e.recordProblem(ctx, inv, gverrors.New(gverrors.KindUnexpectedAddonError, "encoding result", err), started)
		return nil
	}

	if err := inv.Transition(models.StatusSuccess); err != nil {
		return err
	}
	inv.Result = payload
	if err := e.store.FinalizeInvocation(ctx, inv); err != nil {
		return err
	}
	e.metrics.observe(inv.OperationName, string(models.StatusSuccess), time.Since(started))
	return nil
}

// ExecuteByID loads and runs an invocation, the deferred worker's entry
// point. Already-terminal invocations are skipped (queue redelivery).
func (e *Engine) ExecuteByID(ctx context.Context, id string) error {
	inv, err := e.store.GetInvocation(ctx, id)
	if err != nil {
		return err
	}
	if inv.Status.Terminal() {
		return nil
	}
	return e.Execute(ctx, inv)
}

func (e *Engine) loadTarget(ctx context.Context, inv *models.OperationInvocation) (*models.AuthorizedAccount, *models.ConfiguredAddon, error) {
	var configured *models.ConfiguredAddon
	if inv.ConfiguredAddonID != nil {
		var err error
		configured, err = e.store.GetConfiguredAddon(ctx, *inv.ConfiguredAddonID)
		if err != nil {
			return nil, nil, notFoundOr(err, "configured addon")
		}
	}
	account, err := e.store.GetAccount(ctx, inv.AuthorizedAccountID)
	if err != nil {
		return nil, nil, notFoundOr(err, "authorized account")
	}
	return account, configured, nil
}

// deadlineKind reclassifies context errors so deadline expiry surfaces as a
// timeout rather than a generic cancellation.
func deadlineKind(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return gverrors.New(gverrors.KindTimeout, "invocation deadline exceeded", err)
	}
	if errors.Is(ctx.Err(), context.Canceled) || errors.Is(err, context.Canceled) {
		return gverrors.New(gverrors.KindCancelled, "invocation cancelled", err)
	}
	return err
}

func (e *Engine) recordProblem(ctx context.Context, inv *models.OperationInvocation, cause error, started time.Time) {
	inv.ErrorKind = string(gverrors.KindOf(cause))
	inv.ErrorMessage = cause.Error()
	inv.ErrorContext = truncate(fmt.Sprintf("%+v", cause), errorContextLimit)
	if err := inv.Transition(models.StatusProblem); err != nil {
		logger.Errorf("invocation %s: %v", inv.ID, err)
		return
	}
	if err := e.store.FinalizeInvocation(ctx, inv); err != nil {
		logger.Errorf("finalizing invocation %s: %v", inv.ID, err)
	}
	if !started.IsZero() {
		e.metrics.observe(inv.OperationName, string(models.StatusProblem), time.Since(started))
	}
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
