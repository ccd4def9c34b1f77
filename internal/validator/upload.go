package validator

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/certen/independant-validator/internal/blockrepo"
	"github.com/certen/independant-validator/internal/model"
)

// uploadBlockData pushes a proposed block's deterministic encoding to object
// storage and returns the reference id the chain will record alongside the
// block's hash, mirroring how internal/artifact downloads an APK from the
// same store.
func (m *Machine) uploadBlockData(ctx context.Context, block *model.ValidationBlock) (string, error) {
	data := blockrepo.EncodeBlock(block)
	hash := blockrepo.Sha256Block(block)
	refID := fmt.Sprintf("block-%d-%x", block.BlockID, hash[:8])

	url := m.cfg.ObjectStoreURL + "/" + refID
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return "", fmt.Errorf("validator: upload block data: unexpected status %d", resp.StatusCode)
	}
	return refID, nil
}
