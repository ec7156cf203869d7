package docindex

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"os"
)

// EnsureIndicesExist deploys the application package zip at
// DeploymentZipPath to the engine's tenant/config port, creating or
// updating the schema named by IndexName.
func (idx *Index) EnsureIndicesExist(ctx context.Context, deploymentZipPath string) error {
	if deploymentZipPath == "" {
		return fmt.Errorf("deployment zip path is required to ensure indices exist")
	}
	data, err := os.ReadFile(deploymentZipPath)
	if err != nil {
		return fmt.Errorf("read deployment package %s: %w", deploymentZipPath, err)
	}

	url := idx.tenantBaseURL + "/application/v2/tenant/default/prepare-and-activate"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build deploy request: %w", err)
	}
	req.Header.Set("Content-Type", "application/zip")

	resp, err := idx.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("deploy application package: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("deploy application package: unexpected status %s", resp.Status)
	}
	return nil
}
