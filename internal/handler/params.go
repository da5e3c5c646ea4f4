package handler

import (
	"fmt"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/holiman/uint256"
	"github.com/skara-labs/crowdgate/internal/middleware"
	"github.com/skara-labs/crowdgate/internal/model"
	"github.com/skara-labs/crowdgate/internal/pkg/apperrors"
)

func parseAddress(raw, field string) (common.Address, error) {
	if !common.IsHexAddress(raw) {
		return common.Address{}, apperrors.NewInvalidRequest(fmt.Sprintf("%s: invalid address %q", field, raw))
	}
	return common.HexToAddress(raw), nil
}

func parseAmount(raw, field string) (*uint256.Int, error) {
	v, err := model.ParseUnits(raw)
	if err != nil {
		return nil, apperrors.NewInvalidRequest(fmt.Sprintf("%s: %v", field, err))
	}
	return v, nil
}

func pathAddress(c *gin.Context) (common.Address, bool) {
	addr, err := parseAddress(c.Param("address"), "address")
	if err != nil {
		c.Error(err)
		return common.Address{}, false
	}
	return addr, true
}

// actor is the caller when known, otherwise fallback.
func actor(c *gin.Context, fallback common.Address) common.Address {
	if caller, ok := middleware.CallerFrom(c); ok {
		return caller
	}
	return fallback
}

func parseTime(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	if unix, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("invalid time format")
}
