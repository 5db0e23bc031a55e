package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	apikeydomain "github.com/invoicekits/invoicekits/internal/apikey/domain"
	"github.com/invoicekits/invoicekits/internal/clock"
	"github.com/invoicekits/invoicekits/internal/companycontext"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	apiKeyPrefix      = "ik_live_"
	apiKeySecretBytes = 32
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  apikeydomain.Repository
	Clock clock.Clock `optional:"true"`
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	repo  apikeydomain.Repository
	genID *snowflake.Node
	clock clock.Clock
}

func New(p Params) apikeydomain.Service {
	c := p.Clock
	if c == nil {
		c = clock.SystemClock{}
	}
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("apikey.service"),
		repo:  p.Repo,
		genID: p.GenID,
		clock: c,
	}
}

func (s *Service) List(ctx context.Context) ([]apikeydomain.APIKey, error) {
	companyID, err := companyIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.List(ctx, s.db, companyID)
}

func (s *Service) Create(ctx context.Context, req apikeydomain.CreateRequest) (*apikeydomain.SecretResponse, error) {
	companyID, err := companyIDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apikeydomain.ErrInvalidName
	}

	now := s.clock.Now()
	id := s.genID.Generate()
	keyID := newKeyID(id)
	plain, hash, err := generateAPIKey(keyID)
	if err != nil {
		return nil, err
	}

	key := &apikeydomain.APIKey{
		ID:        id,
		CompanyID: companyID,
		KeyID:     keyID,
		Name:      name,
		KeyHash:   hash,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: req.ExpiresAt,
	}
	if err := s.repo.Insert(ctx, s.db, key); err != nil {
		return nil, err
	}

	s.log.Info("api key created",
		zap.String("company_id", companyID.String()),
		zap.String("key_id", keyID),
	)
	return &apikeydomain.SecretResponse{KeyID: key.KeyID, APIKey: plain}, nil
}

func (s *Service) Revoke(ctx context.Context, keyID string) error {
	companyID, err := companyIDFromContext(ctx)
	if err != nil {
		return err
	}

	trimmed := strings.TrimSpace(keyID)
	if trimmed == "" {
		return apikeydomain.ErrInvalidKeyID
	}

	key, err := s.repo.FindByKeyID(ctx, s.db, companyID, trimmed)
	if err != nil {
		return err
	}
	if key == nil {
		return apikeydomain.ErrNotFound
	}

	now := s.clock.Now()
	key.IsActive = false
	key.UpdatedAt = now
	if key.ExpiresAt == nil || key.ExpiresAt.After(now) {
		key.ExpiresAt = &now
	}
	return s.repo.Update(ctx, s.db, key)
}

func (s *Service) Authenticate(ctx context.Context, raw string) (*apikeydomain.APIKey, error) {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, apiKeyPrefix) {
		return nil, apikeydomain.ErrInvalidKey
	}

	hash := apikeydomain.HashAPIKey(raw)
	key, err := s.repo.FindByHash(ctx, s.db, hash)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	if key == nil || !key.Usable(now) || subtle.ConstantTimeCompare([]byte(key.KeyHash), []byte(hash)) != 1 {
		return nil, apikeydomain.ErrInvalidKey
	}

	if err := s.repo.TouchLastUsed(ctx, s.db, key.ID, now); err != nil {
		s.log.Warn("failed to record api key usage", zap.String("key_id", key.KeyID), zap.Error(err))
	}
	key.LastUsedAt = &now
	return key, nil
}

func companyIDFromContext(ctx context.Context) (snowflake.ID, error) {
	companyID, ok := companycontext.CompanyIDFromContext(ctx)
	if !ok {
		return 0, apikeydomain.ErrInvalidCompany
	}
	return companyID, nil
}

func generateAPIKey(keyID string) (string, string, error) {
	secret := make([]byte, apiKeySecretBytes)
	if _, err := rand.Read(secret); err != nil {
		return "", "", err
	}

	secretPart := hex.EncodeToString(secret)
	trimmed := strings.TrimPrefix(keyID, "key_")
	plain := fmt.Sprintf("%s%s_%s", apiKeyPrefix, trimmed, secretPart)
	return plain, apikeydomain.HashAPIKey(plain), nil
}

func newKeyID(id snowflake.ID) string {
	return "key_" + strings.ToUpper(strconv.FormatInt(int64(id), 36))
}
