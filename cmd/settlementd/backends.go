package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/PNWBNW/Proven-National-Worker/internal/api/handler"
	"github.com/PNWBNW/Proven-National-Worker/internal/audit"
	"github.com/PNWBNW/Proven-National-Worker/internal/ledger"
	"github.com/PNWBNW/Proven-National-Worker/internal/proof"
	"github.com/PNWBNW/Proven-National-Worker/internal/transport"
)

// openStore builds the ledger store selected by storage.backend.
func openStore(ctx context.Context, pool *pgxpool.Pool, rdb redis.UniversalClient, logger *zap.Logger) (*ledger.Store, func(), error) {
	noop := func() {}
	switch backend := viper.GetString("storage.backend"); backend {
	case "memory", "":
		logger.Warn("ledger storage is in memory; balances are lost on restart")
		return ledger.NewStore(ledger.NewMemoryStore()), noop, nil
	case "postgres":
		return ledger.NewStore(ledger.NewPostgresStore(pool, logger)), noop, nil
	case "sqlite":
		path := viper.GetString("storage.sqlite_path")
		s, err := ledger.OpenSQLite(ctx, path)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite %s: %w", path, err)
		}
		logger.Info("ledger storage on sqlite", zap.String("path", path))
		return ledger.NewStore(s), func() { _ = s.Close() }, nil
	case "redis":
		if rdb == nil {
			return nil, nil, fmt.Errorf("storage.backend redis requires redis.addr")
		}
		return ledger.NewStore(ledger.NewRedisStore(rdb, viper.GetString("storage.redis_namespace"))), noop, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage.backend %q", backend)
	}
}

// newTransport returns the transfer backend selected by transport.mode.
func newTransport(logger *zap.Logger) transport.Transport {
	if viper.GetString("transport.mode") != "http" {
		logger.Warn("using in-memory transport; no funds leave this process")
		return transport.NewMemory()
	}
	opts := []transport.HTTPOption{
		transport.WithConfirmation(
			viper.GetDuration("transport.confirm_interval"),
			viper.GetInt("transport.confirm_polls"),
		),
	}
	if tok := viper.GetString("transport.token"); tok != "" {
		opts = append(opts, transport.WithBearerToken(tok))
	}
	logger.Info("using HTTP transport", zap.String("url", viper.GetString("transport.url")))
	return transport.NewHTTP(viper.GetString("transport.url"), opts...)
}

type rootsFunc func(ctx context.Context, root string) (bool, error)

func (f rootsFunc) Trusted(ctx context.Context, root string) (bool, error) { return f(ctx, root) }

type kycFunc func(ctx context.Context, id string) (string, bool, error)

func (f kycFunc) KYCAttestation(ctx context.Context, id string) (string, bool, error) {
	return f(ctx, id)
}

// buildVerifier routes each proof kind to its production verifier. With
// proof.allow_always_valid set, every kind accepts any non-empty proof.
func buildVerifier(commitments proof.TrustedRoots, kyc proof.KYCRegistry, logger *zap.Logger) (proof.Verifier, error) {
	if viper.GetBool("proof.allow_always_valid") {
		logger.Warn("proof verification disabled; every non-empty proof is accepted")
		return proof.AlwaysValid(), nil
	}

	// A list rather than a map: viper lowercases map keys, and subject IDs
	// are case sensitive.
	var committed []struct {
		Subject    string `mapstructure:"subject"`
		Commitment string `mapstructure:"commitment"`
	}
	if err := viper.UnmarshalKey("proof.commitments", &committed); err != nil {
		return nil, fmt.Errorf("parse proof.commitments: %w", err)
	}
	byID := make(proof.CommitmentMap, len(committed))
	for _, c := range committed {
		byID[c.Subject] = c.Commitment
	}
	mimc := proof.NewMiMCVerifier(byID)
	roots := proof.AnyRoots(commitments, proof.StaticRoots(viper.GetStringSlice("proof.trusted_roots")))

	return proof.NewRouter().
		Handle(proof.KindIdentity, mimc).
		Handle(proof.KindZKEligibility, mimc).
		Handle(proof.KindKYC, proof.NewKYCVerifier(kyc)).
		Handle(proof.KindMerkleInclusion, proof.NewMerkleVerifier(roots)), nil
}

// exportLoop ships new audit entries to S3 every interval.
func exportLoop(ctx context.Context, x *audit.S3Exporter, log audit.Log, interval time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			n, err := x.Export(ctx, log)
			if err != nil {
				logger.Warn("audit export failed", zap.Error(err))
				continue
			}
			handler.RecordAuditExport(n)
			if n > 0 {
				logger.Info("audit entries exported", zap.Int("count", n))
			}
		case <-ctx.Done():
			return
		}
	}
}
