package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/sealgate/internal/logging"
	"github.com/aretw0/sealgate/pkg/domain"
	"github.com/aretw0/sealgate/pkg/ports"
	"github.com/google/uuid"
)

// DefaultLockTTL bounds how long a distributed lock survives a crashed holder.
const DefaultLockTTL = 30 * time.Second

// Service drives the container signing workflow. Every transition is a full
// Get, Clone, mutate, Put cycle against the store, so the stored session is
// the only workflow memory and any replica can resume it.
type Service struct {
	store   ports.SessionStore
	signer  ports.Signer
	version string

	serialize bool
	locks     *keyLocks
	locker    ports.KeyLocker
	lockTTL   time.Duration

	now    func() time.Time
	newID  func() string
	logger *slog.Logger
}

// Option configures the Service.
type Option func(*Service)

// WithLocker serializes transitions on the same key across replicas.
// It implies WithSerializedKeys.
func WithLocker(locker ports.KeyLocker) Option {
	return func(s *Service) {
		s.locker = locker
		s.serialize = true
	}
}

// WithSerializedKeys serializes transitions on the same key inside this process.
// Without it concurrent transitions on one key are last-writer-wins.
func WithSerializedKeys() Option {
	return func(s *Service) {
		s.serialize = true
	}
}

// WithLockTTL overrides DefaultLockTTL.
func WithLockTTL(ttl time.Duration) Option {
	return func(s *Service) {
		s.lockTTL = ttl
	}
}

// WithCacheVersion sets the key prefix. Bumping it orphans every existing session.
func WithCacheVersion(version string) Option {
	return func(s *Service) {
		s.version = version
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithIDGenerator overrides container and signature id generation.
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) {
		s.newID = fn
	}
}

// WithLogger configures a logger for the Service.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewService creates a workflow service over the given store and signer.
func NewService(store ports.SessionStore, signer ports.Signer, opts ...Option) *Service {
	s := &Service{
		store:   store,
		signer:  signer,
		version: domain.DefaultCacheVersion,
		locks:   newKeyLocks(),
		lockTTL: DefaultLockTTL,
		now:     time.Now,
		newID:   uuid.NewString,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store returns the underlying session store.
func (s *Service) Store() ports.SessionStore {
	return s.store
}

// Key returns the store key of containerID under owner's namespace.
func (s *Service) Key(owner domain.AuthenticatedIdentity, containerID string) domain.SessionKey {
	return domain.NewSessionKey(s.version, owner, containerID)
}

// Create registers a new container and returns its session in the CREATED phase.
func (s *Service) Create(ctx context.Context, owner domain.AuthenticatedIdentity, payload domain.Variant) (*domain.Session, error) {
	return s.Upload(ctx, owner, s.newID(), payload)
}

// Upload registers payload under a caller-chosen container id. An existing
// session under the same key is never overwritten; a payload of another kind
// than the stored one is reported as a variant mismatch.
func (s *Service) Upload(ctx context.Context, owner domain.AuthenticatedIdentity, containerID string, payload domain.Variant) (*domain.Session, error) {
	if err := validatePayload(payload); err != nil {
		return nil, err
	}
	key := s.Key(owner, containerID)
	if !key.Valid() {
		return nil, domain.NewInvalidRequest("container id and service uuid are required")
	}

	var created *domain.Session
	err := s.withKeyLock(ctx, key.String(), func(ctx context.Context) error {
		existing, err := s.store.Get(ctx, key)
		switch {
		case err == nil:
			if existing.Kind() != payload.Kind() {
				return domain.NewInvalidRequest("container %s is registered as %s, not %s", containerID, existing.Kind(), payload.Kind())
			}
			return domain.NewInvalidRequest("container %s already exists", containerID)
		case !errors.Is(err, domain.ErrNotFound):
			return fmt.Errorf("failed to check container existence: %w", err)
		}

		created = domain.NewSession(containerID, owner, payload, s.now())
		if err := s.store.Put(ctx, key, created); err != nil {
			return fmt.Errorf("failed to store container: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Debug("Container created", "key", key.String(), "kind", payload.Kind())
	return created, nil
}

// Get loads the session of containerID, requiring it to be of the given kind.
func (s *Service) Get(ctx context.Context, owner domain.AuthenticatedIdentity, kind domain.Kind, containerID string) (*domain.Session, error) {
	sess, err := s.store.Get(ctx, s.Key(owner, containerID))
	if err != nil {
		return nil, err
	}
	if err := requireKind(sess, kind); err != nil {
		return nil, err
	}
	return sess, nil
}

// PrepareDataToSign computes data-to-sign for a signer and stores it under a
// generated signature id until the signature value arrives.
func (s *Service) PrepareDataToSign(ctx context.Context, owner domain.AuthenticatedIdentity, kind domain.Kind, containerID string, req ports.SigningRequest) (string, ports.DataToSign, error) {
	if req.SigningType == "" {
		req.SigningType = domain.SigningRemote
	}
	if req.SigningType == domain.SigningRemote && len(req.SigningCertificate) == 0 {
		return "", ports.DataToSign{}, domain.NewInvalidRequest("signing certificate is required for remote signing")
	}

	var (
		sigID string
		dts   ports.DataToSign
	)
	err := s.mutate(ctx, owner, kind, containerID, func(sess *domain.Session) error {
		next := domain.PhaseDataPrepared
		if sess.Phase == domain.PhaseSignatureAttached || sess.Phase == domain.PhaseSignaturePending {
			next = domain.PhaseSignaturePending
		}
		if err := checkTransition(sess, next); err != nil {
			return err
		}

		var err error
		dts, err = s.signer.PrepareDataToSign(ctx, sess, req)
		if err != nil {
			return err
		}

		sigID = s.newID()
		if sess.SignatureSessions == nil {
			sess.SignatureSessions = make(map[string]domain.SignatureSession)
		}
		sess.SignatureSessions[sigID] = domain.SignatureSession{
			DataToSign:         dts.Data,
			DigestAlgorithm:    dts.DigestAlgorithm,
			SignatureProfile:   req.SignatureProfile,
			SigningType:        req.SigningType,
			SigningCertificate: req.SigningCertificate,
			DataFilesHash:      dts.DataFilesHash,
			Status:             domain.ProcessingStatus{Status: domain.StatusOutstanding},
			CreatedAt:          s.now().UTC(),
		}
		return sess.Transition(next)
	})
	if err != nil {
		return "", ports.DataToSign{}, err
	}
	return sigID, dts, nil
}

// MarkSignaturePending records a polling update of an outstanding signing
// transaction and moves the session to SIGNATURE_PENDING.
func (s *Service) MarkSignaturePending(ctx context.Context, owner domain.AuthenticatedIdentity, kind domain.Kind, containerID, signatureID string, status domain.ProcessingStatus) error {
	return s.mutate(ctx, owner, kind, containerID, func(sess *domain.Session) error {
		pending, ok := sess.SignatureSessions[signatureID]
		if !ok {
			return fmt.Errorf("%s: %w", signatureID, domain.ErrSignatureNotFound)
		}
		if err := checkTransition(sess, domain.PhaseSignaturePending); err != nil {
			return err
		}
		if status.Status == "" {
			status.Status = domain.StatusOutstanding
		}
		status.ProcessingCounter = pending.Status.ProcessingCounter + 1
		pending.Status = status
		sess.SignatureSessions[signatureID] = pending
		return sess.Transition(domain.PhaseSignaturePending)
	})
}

// AttachSignature merges a signature value into the container and moves the
// session to SIGNATURE_ATTACHED.
func (s *Service) AttachSignature(ctx context.Context, owner domain.AuthenticatedIdentity, kind domain.Kind, containerID, signatureID string, value []byte) (domain.SignatureRecord, error) {
	if len(value) == 0 {
		return domain.SignatureRecord{}, domain.NewInvalidRequest("signature value is required")
	}

	var record domain.SignatureRecord
	err := s.mutate(ctx, owner, kind, containerID, func(sess *domain.Session) error {
		pending, ok := sess.SignatureSessions[signatureID]
		if !ok {
			return fmt.Errorf("%s: %w", signatureID, domain.ErrSignatureNotFound)
		}
		if err := checkTransition(sess, domain.PhaseSignatureAttached); err != nil {
			return err
		}

		var err error
		record, err = s.signer.AttachSignature(ctx, sess, pending, value)
		if err != nil {
			return err
		}
		if record.ID == "" {
			record.ID = signatureID
		}
		if record.SignedAt.IsZero() {
			record.SignedAt = s.now().UTC()
		}
		sess.Signatures = append(sess.Signatures, record)
		delete(sess.SignatureSessions, signatureID)
		return sess.Transition(domain.PhaseSignatureAttached)
	})
	if err != nil {
		return domain.SignatureRecord{}, err
	}
	return record, nil
}

// Finalize closes the container to further signatures.
func (s *Service) Finalize(ctx context.Context, owner domain.AuthenticatedIdentity, kind domain.Kind, containerID string) (*domain.Session, error) {
	var out *domain.Session
	err := s.mutate(ctx, owner, kind, containerID, func(sess *domain.Session) error {
		if err := checkTransition(sess, domain.PhaseFinalized); err != nil {
			return err
		}
		// Unanswered data-to-sign can no longer be used.
		sess.SignatureSessions = nil
		sess.CertificateSessions = nil
		out = sess
		return sess.Transition(domain.PhaseFinalized)
	})
	return out, err
}

// Status reports the processing status of a signature id. Attached
// signatures report StatusSigned.
func (s *Service) Status(ctx context.Context, owner domain.AuthenticatedIdentity, kind domain.Kind, containerID, signatureID string) (domain.ProcessingStatus, error) {
	sess, err := s.Get(ctx, owner, kind, containerID)
	if err != nil {
		return domain.ProcessingStatus{}, err
	}
	if pending, ok := sess.SignatureSessions[signatureID]; ok {
		return pending.Status, nil
	}
	for _, sig := range sess.Signatures {
		if sig.ID == signatureID {
			return domain.ProcessingStatus{Status: domain.StatusSigned}, nil
		}
	}
	return domain.ProcessingStatus{}, fmt.Errorf("%s: %w", signatureID, domain.ErrSignatureNotFound)
}

// Close removes the container session.
func (s *Service) Close(ctx context.Context, owner domain.AuthenticatedIdentity, kind domain.Kind, containerID string) error {
	key := s.Key(owner, containerID)
	return s.withKeyLock(ctx, key.String(), func(ctx context.Context) error {
		sess, err := s.store.Get(ctx, key)
		if err != nil {
			return err
		}
		if err := requireKind(sess, kind); err != nil {
			return err
		}
		return s.store.Delete(ctx, key)
	})
}

// mutate performs one Get, Clone, fn, Put cycle. Nothing is stored when fn fails.
func (s *Service) mutate(ctx context.Context, owner domain.AuthenticatedIdentity, kind domain.Kind, containerID string, fn func(*domain.Session) error) error {
	key := s.Key(owner, containerID)
	return s.withKeyLock(ctx, key.String(), func(ctx context.Context) error {
		stored, err := s.store.Get(ctx, key)
		if err != nil {
			return err
		}
		if err := requireKind(stored, kind); err != nil {
			return err
		}

		next := stored.Clone()
		if err := fn(next); err != nil {
			return err
		}
		next.UpdatedAt = s.now().UTC()

		if err := s.store.Put(ctx, key, next); err != nil {
			return fmt.Errorf("failed to store container: %w", err)
		}
		s.logger.Debug("Container transitioned", "key", key.String(), "from", stored.Phase, "to", next.Phase)
		return nil
	})
}

// requireKind rejects operations addressed to the wrong container mode.
// An empty kind accepts any variant.
func requireKind(sess *domain.Session, kind domain.Kind) error {
	if kind == "" || sess.Kind() == kind {
		return nil
	}
	return &domain.TechnicalError{
		Kind:   domain.WrongVariant,
		Detail: fmt.Sprintf("container %s is %s, operation requires %s", sess.ContainerID, sess.Kind(), kind),
	}
}

// checkTransition reports client-driven ordering mistakes as invalid requests.
func checkTransition(sess *domain.Session, to domain.Phase) error {
	if sess.Phase == domain.PhaseFinalized {
		return domain.NewInvalidRequest("container %s is finalized", sess.ContainerID)
	}
	if !domain.CanTransition(sess.Phase, to) {
		return domain.NewInvalidRequest("container %s cannot move from %s to %s", sess.ContainerID, sess.Phase, to)
	}
	return nil
}

func validatePayload(v domain.Variant) error {
	switch p := v.(type) {
	case *domain.AttachedContainer:
		if p == nil || p.ContainerName == "" {
			return domain.NewInvalidRequest("container name is required")
		}
		if len(p.Container) == 0 && len(p.DataFiles) == 0 {
			return domain.NewInvalidRequest("container content or data files are required")
		}
		for _, f := range p.DataFiles {
			if f.FileName == "" {
				return domain.NewInvalidRequest("data file name is required")
			}
		}
	case *domain.DetachedHashcodeContainer:
		if p == nil || len(p.DataFiles) == 0 {
			return domain.NewInvalidRequest("at least one data file is required")
		}
		for _, f := range p.DataFiles {
			if f.FileName == "" {
				return domain.NewInvalidRequest("data file name is required")
			}
			if f.FileSize < 0 {
				return domain.NewInvalidRequest("data file %s has negative size", f.FileName)
			}
			if f.FileHashSha256 == "" && f.FileHashSha512 == "" {
				return domain.NewInvalidRequest("data file %s has no digest", f.FileName)
			}
		}
	case *domain.AsicGenericContainer:
		if p == nil || p.ContainerName == "" || len(p.Container) == 0 {
			return domain.NewInvalidRequest("container name and content are required")
		}
	default:
		return domain.NewInvalidRequest("container payload is required")
	}
	return nil
}
