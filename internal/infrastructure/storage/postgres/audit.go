package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"

	appctx "opname/internal/core/context"
	"opname/internal/core/id"
	"opname/internal/domain/reconciliation"
)

// CompressionAlgo specifies the compression algorithm used.
type CompressionAlgo string

const (
	CompressionNone CompressionAlgo = "none"
	CompressionZstd CompressionAlgo = "zstd"
)

// AuditEntry is a single record in the permanent workflow audit log.
type AuditEntry struct {
	ID                id.ID                      `db:"id"`
	SubmissionID      id.ID                      `db:"submission_id"`
	Action            reconciliation.AuditAction `db:"action"`
	UserID            string                     `db:"user_id"`
	Payload           json.RawMessage            `db:"payload"`
	PayloadCompressed []byte                     `db:"payload_compressed"`
	CompressionAlgo   CompressionAlgo            `db:"compression_algo"`
	CreatedAt         time.Time                  `db:"created_at"`
}

// AuditService records workflow events (creation, line updates, status
// changes) for reconciliation submissions. Large payloads are stored
// zstd-compressed.
type AuditService struct {
	txManager         *TxManager
	encoder           *zstd.Encoder
	compressThreshold int // bytes
}

// Compile-time check against the domain contract.
var _ reconciliation.AuditTrail = (*AuditService)(nil)

// NewAuditService creates a new audit service.
func NewAuditService(txManager *TxManager) (*AuditService, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}

	return &AuditService{
		txManager:         txManager,
		encoder:           encoder,
		compressThreshold: 10 * 1024, // 10KB
	}, nil
}

// Record implements reconciliation.AuditTrail.
func (s *AuditService) Record(ctx context.Context, action reconciliation.AuditAction, subID id.ID, payload any) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	entry := AuditEntry{
		ID:              id.New(),
		SubmissionID:    subID,
		Action:          action,
		UserID:          appctx.GetUserID(ctx),
		Payload:         payloadJSON,
		CompressionAlgo: CompressionNone,
		CreatedAt:       time.Now().UTC(),
	}

	if len(entry.Payload) > s.compressThreshold {
		entry.PayloadCompressed = s.encoder.EncodeAll(entry.Payload, nil)
		entry.Payload = nil
		entry.CompressionAlgo = CompressionZstd
	}

	sql := `
		INSERT INTO sys_audit (
			id, submission_id, action, user_id,
			payload, payload_compressed, compression_algo, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	querier := s.txManager.GetQuerier(ctx)
	_, err = querier.Exec(ctx, sql,
		entry.ID, entry.SubmissionID, entry.Action, entry.UserID,
		entry.Payload, entry.PayloadCompressed, entry.CompressionAlgo,
		entry.CreatedAt,
	)
	return err
}
