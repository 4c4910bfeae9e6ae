package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/mkral/importer/internal/core/cursor"
	"github.com/mkral/importer/internal/core/domain"
)

// activityEnvelope is the generic REST paging envelope most activity APIs
// return: a list of records plus an opaque continuation token.
type activityEnvelope struct {
	Items         []domain.Transaction `json:"items"`
	NextPageToken string               `json:"next_page_token"`
	Complete      bool                 `json:"complete"`
}

// RESTBuildRequest builds a GET request against a conventional activity
// endpoint. The resume cursor is passed in whichever query parameter
// matches its kind.
func RESTBuildRequest(apiKey string) BuildRequestFunc {
	return func(ctx context.Context, endpoint string, req Request) (*http.Request, error) {
		u, err := url.Parse(endpoint)
		if err != nil {
			return nil, fmt.Errorf("parse endpoint: %w", err)
		}

		q := u.Query()
		q.Set("operation", string(req.Kind))
		q.Set("address", req.Address)
		if req.Asset != "" {
			q.Set("asset", req.Asset)
		}
		if req.PageSize > 0 {
			q.Set("limit", strconv.Itoa(req.PageSize))
		}

		switch req.Resume.Kind {
		case cursor.KindPageToken:
			q.Set("page_token", req.Resume.PageToken)
		case cursor.KindBlockNumber:
			q.Set("from_block", strconv.FormatUint(req.Resume.BlockNumber, 10))
		case cursor.KindTimestamp:
			q.Set("from_timestamp", strconv.FormatInt(req.Resume.Timestamp, 10))
		}
		u.RawQuery = q.Encode()

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Accept", "application/json")
		if apiKey != "" {
			httpReq.Header.Set("Authorization", "Bearer "+apiKey)
		}
		return httpReq, nil
	}
}

// RESTDecode parses the conventional activity envelope.
func RESTDecode() DecodeFunc {
	return func(req Request, body []byte) (cursor.Batch, error) {
		var env activityEnvelope
		if err := json.Unmarshal(body, &env); err != nil {
			return cursor.Batch{}, fmt.Errorf("decode response: %w", err)
		}
		return cursor.Batch{
			Items:      env.Items,
			PageToken:  env.NextPageToken,
			IsComplete: env.Complete || env.NextPageToken == "",
		}, nil
	}
}
