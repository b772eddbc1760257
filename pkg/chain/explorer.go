package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/tradewatch/tradewatch/pkg/retry"
)

// TxRecord is one row of an explorer transaction listing. Method selector and
// function name let callers drop approvals and non-swap calls before paying
// for a receipt fetch.
type TxRecord struct {
	Hash         common.Hash
	From         common.Address
	To           common.Address
	Value        *big.Int
	BlockNumber  uint64
	Time         time.Time
	Success      bool
	MethodID     string
	FunctionName string
}

// Explorer is an etherscan-compatible transaction index. Every request goes
// through a shared batch limiter; free-tier explorers throttle hard.
type Explorer struct {
	apiURL  string
	apiKey  string
	client  *http.Client
	limiter *retry.Limiter
	log     zerolog.Logger
}

func NewExplorer(apiURL, apiKey string, log zerolog.Logger) *Explorer {
	return &Explorer{
		apiURL:  apiURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 30 * time.Second},
		limiter: retry.NewLimiter(4, time.Second),
		log:     log,
	}
}

type explorerResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

// TxList returns the wallet's transactions between two blocks, oldest first.
// An empty listing is a valid result, not an error.
func (e *Explorer) TxList(ctx context.Context, address common.Address, startBlock, endBlock uint64) ([]TxRecord, error) {
	url := fmt.Sprintf("%s?module=account&action=txlist&address=%s&startblock=%d&endblock=%d&page=1&offset=10000&sort=asc&apikey=%s",
		e.apiURL, address.Hex(), startBlock, endBlock, e.apiKey)

	raw, err := e.listCall(ctx, url)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}

	var rows []struct {
		BlockNumber  string `json:"blockNumber"`
		TimeStamp    string `json:"timeStamp"`
		Hash         string `json:"hash"`
		From         string `json:"from"`
		To           string `json:"to"`
		Value        string `json:"value"`
		IsError      string `json:"isError"`
		ReceiptState string `json:"txreceipt_status"`
		MethodID     string `json:"methodId"`
		FunctionName string `json:"functionName"`
	}
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("txlist unmarshal: %w", err)
	}

	records := make([]TxRecord, 0, len(rows))
	for _, r := range rows {
		value, ok := new(big.Int).SetString(r.Value, 10)
		if !ok {
			continue
		}
		block, _ := strconv.ParseUint(r.BlockNumber, 10, 64)
		ts, _ := strconv.ParseInt(r.TimeStamp, 10, 64)
		records = append(records, TxRecord{
			Hash:         common.HexToHash(r.Hash),
			From:         common.HexToAddress(r.From),
			To:           common.HexToAddress(r.To),
			Value:        value,
			BlockNumber:  block,
			Time:         time.Unix(ts, 0),
			Success:      r.IsError == "0" && r.ReceiptState != "0",
			MethodID:     r.MethodID,
			FunctionName: r.FunctionName,
		})
	}
	return records, nil
}

// InternalTransfers sums the internal value transfers of one transaction that
// land on wallet. Used as the trace fallback when the node cannot trace.
func (e *Explorer) InternalTransfers(ctx context.Context, tx common.Hash, wallet common.Address) (*big.Int, error) {
	url := fmt.Sprintf("%s?module=account&action=txlistinternal&txhash=%s&apikey=%s",
		e.apiURL, tx.Hex(), e.apiKey)

	raw, err := e.listCall(ctx, url)
	if err != nil {
		return nil, err
	}
	total := new(big.Int)
	if raw == nil {
		return total, nil
	}

	var rows []struct {
		To      string `json:"to"`
		Value   string `json:"value"`
		IsError string `json:"isError"`
	}
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("txlistinternal unmarshal: %w", err)
	}
	for _, r := range rows {
		if r.IsError != "0" || common.HexToAddress(r.To) != wallet {
			continue
		}
		if v, ok := new(big.Int).SetString(r.Value, 10); ok {
			total.Add(total, v)
		}
	}
	return total, nil
}

// EthPriceUSD returns the explorer's current native-currency USD quote.
func (e *Explorer) EthPriceUSD(ctx context.Context) (float64, error) {
	url := fmt.Sprintf("%s?module=stats&action=ethprice&apikey=%s", e.apiURL, e.apiKey)
	raw, err := e.listCall(ctx, url)
	if err != nil {
		return 0, err
	}
	var result struct {
		EthUSD string `json:"ethusd"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return 0, fmt.Errorf("ethprice unmarshal: %w", err)
	}
	price, err := strconv.ParseFloat(result.EthUSD, 64)
	if err != nil {
		return 0, fmt.Errorf("ethprice parse: %w", err)
	}
	return price, nil
}

// listCall runs one explorer request through the limiter and retry policy.
// A "No transactions found" status returns (nil, nil).
func (e *Explorer) listCall(ctx context.Context, url string) (json.RawMessage, error) {
	return retry.Do(ctx, 5, 150*time.Millisecond, func(ctx context.Context) (json.RawMessage, error) {
		release, err := e.limiter.Acquire(ctx)
		if err != nil {
			return nil, err
		}
		defer release()

		body, err := e.getJSON(ctx, url)
		if err != nil {
			return nil, err
		}
		var resp explorerResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("explorer unmarshal: %w", err)
		}
		if resp.Status != "1" {
			if strings.Contains(resp.Message, "No transactions found") {
				return nil, nil
			}
			return nil, fmt.Errorf("explorer status %s: %s", resp.Status, resp.Message)
		}
		return resp.Result, nil
	})
}

func (e *Explorer) getJSON(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("HTTP %d from %s", resp.StatusCode, url)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 10<<20)) // 10MB max
}
