package search

import (
	"github.com/hyperjump/bunbetsu/internal/config"
	"github.com/hyperjump/bunbetsu/internal/models"
	"github.com/hyperjump/bunbetsu/internal/textnorm"
)

// ProcessQuery validates req, normalizes its text and clamps K into the configured range.
func ProcessQuery(req *models.QueryRequest, cfg config.RetrievalConfig) error {
	if err := req.Validate(); err != nil {
		return err
	}
	req.Query = textnorm.Normalize(req.Query)
	req.K = cfg.ClampK(req.K)
	return nil
}
