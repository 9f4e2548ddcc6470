// Package nearrpc reads contract state through NEAR JSON-RPC view calls.
package nearrpc

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/stake-plus/devhub-cache/src/devhub"
	"github.com/stake-plus/devhub-cache/src/metrics"
	"github.com/stake-plus/devhub-cache/src/webclient"
)

// ErrContract wraps errors reported by the node or the contract itself, as
// opposed to transport failures.
var ErrContract = errors.New("nearrpc: contract call failed")

// BlockRef selects the state a view call reads: the final head when Height
// is zero, otherwise the state at that block.
type BlockRef struct {
	Height int64
}

// Head reads the latest final state.
var Head = BlockRef{}

// At pins a read to a block height.
func At(height int64) BlockRef { return BlockRef{Height: height} }

type Options struct {
	URL        string
	Contract   string
	Timeout    time.Duration
	Retry      webclient.Retry
	HTTPClient *http.Client
}

type Client struct {
	url      string
	contract string
	http     *http.Client
	retry    webclient.Retry
	log      *zap.Logger
}

func New(opts Options, log *zap.Logger) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		hc = webclient.NewDefault(opts.Timeout)
	}
	retry := opts.Retry
	if retry.Attempts == 0 {
		retry = webclient.DefaultRetry
	}
	return &Client{url: opts.URL, contract: opts.Contract, http: hc, retry: retry, log: log.Named("nearrpc")}
}

// Contract is the account whose view methods are called.
func (c *Client) Contract() string { return c.contract }

// GetProposal calls get_proposal for id at ref.
func (c *Client) GetProposal(ctx context.Context, id uint32, ref BlockRef) (*devhub.VersionedProposal, error) {
	var out devhub.VersionedProposal
	if err := c.View(ctx, "get_proposal", map[string]any{"proposal_id": id}, ref, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetRFP calls get_rfp for id at ref.
func (c *Client) GetRFP(ctx context.Context, id uint32, ref BlockRef) (*devhub.VersionedRFP, error) {
	var out devhub.VersionedRFP
	if err := c.View(ctx, "get_rfp", map[string]any{"rfp_id": id}, ref, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  params `json:"params"`
}

type params struct {
	RequestType string `json:"request_type"`
	Finality    string `json:"finality,omitempty"`
	BlockID     int64  `json:"block_id,omitempty"`
	AccountID   string `json:"account_id"`
	MethodName  string `json:"method_name"`
	ArgsBase64  string `json:"args_base64"`
}

type response struct {
	Result *struct {
		RawResult   []int  `json:"result"`
		Error       string `json:"error"`
		BlockHeight int64  `json:"block_height"`
	} `json:"result"`
	Error *rpcError `json:"error"`
}

type rpcError struct {
	Name    string          `json:"name"`
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Cause   *struct {
		Name string `json:"name"`
	} `json:"cause"`
}

func (e *rpcError) String() string {
	name := e.Name
	if e.Cause != nil && e.Cause.Name != "" {
		name = e.Cause.Name
	}
	return fmt.Sprintf("%s (%d): %s %s", name, e.Code, e.Message, string(e.Data))
}

// View runs a call_function query and decodes the returned JSON into out.
func (c *Client) View(ctx context.Context, method string, args any, ref BlockRef, out any) error {
	argsJSON, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("nearrpc: encode args: %w", err)
	}
	p := params{
		RequestType: "call_function",
		AccountID:   c.contract,
		MethodName:  method,
		ArgsBase64:  base64.StdEncoding.EncodeToString(argsJSON),
	}
	if ref.Height > 0 {
		p.BlockID = ref.Height
	} else {
		p.Finality = "final"
	}
	payload, err := json.Marshal(request{JSONRPC: "2.0", ID: "dontcare", Method: "query", Params: p})
	if err != nil {
		return err
	}

	status, body, err := c.retry.Do(ctx, func() (int, []byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
		if err != nil {
			return 0, nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return webclient.Send(c.http, req)
	})
	if err == nil && (status < 200 || status >= 300) {
		err = fmt.Errorf("nearrpc: status %d", status)
	}
	if err == nil {
		err = decodeView(body, out)
	}

	result := "ok"
	if err != nil {
		result = "error"
		c.log.Debug("view call failed", zap.String("method", method), zap.Int64("block_id", ref.Height), zap.Error(err))
	}
	metrics.RPCCalls.WithLabelValues(method, result).Inc()
	return err
}

func decodeView(body []byte, out any) error {
	var resp response
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("nearrpc: decode response: %w", err)
	}
	if resp.Error != nil {
		return fmt.Errorf("%w: %s", ErrContract, resp.Error.String())
	}
	if resp.Result == nil {
		return fmt.Errorf("%w: empty result", ErrContract)
	}
	if resp.Result.Error != "" {
		return fmt.Errorf("%w: %s", ErrContract, resp.Result.Error)
	}
	raw := make([]byte, len(resp.Result.RawResult))
	for i, b := range resp.Result.RawResult {
		if b < 0 || b > 255 {
			return fmt.Errorf("nearrpc: result byte %d out of range", b)
		}
		raw[i] = byte(b)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("nearrpc: decode view result: %w", err)
	}
	return nil
}
