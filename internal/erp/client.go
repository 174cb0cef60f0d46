// Package erp talks to the OpenSPP ERP over its XML-RPC external API.
package erp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/rpc"
	"strings"
	"sync"

	"github.com/Jainish-S/playground/apps/card-generator-go/internal/logging"
	"github.com/kolo/xmlrpc"
	"github.com/samber/lo"
)

const (
	commonEndpoint = "/xmlrpc/2/common"
	objectEndpoint = "/xmlrpc/2/object"
)

var (
	ErrAPI            = errors.New("openspp api error")
	ErrAuthentication = errors.New("openspp authentication failed")
)

// Domain is an OpenSPP search domain, e.g. [["id", "=", 5]].
type Domain []interface{}

// Record is one row returned by read or search_read. OpenSPP sends false
// for empty non-boolean fields.
type Record map[string]interface{}

// ID returns the record id, or 0.
func (r Record) ID() int64 {
	id, _ := toInt64(r["id"])
	return id
}

// String returns a string field; false and missing values report ok=false.
func (r Record) String(key string) (string, bool) {
	s, ok := r[key].(string)
	return s, ok
}

// IDs returns a one2many/many2many field as a list of ids.
func (r Record) IDs(key string) []int64 {
	items, ok := r[key].([]interface{})
	if !ok {
		return nil
	}
	return lo.FilterMap(items, func(item interface{}, _ int) (int64, bool) {
		return toInt64(item)
	})
}

type Config struct {
	ServerRoot string
	Database   string
	Username   string
	Password   string // password or API key
	FetchLimit int
	Transport  http.RoundTripper
	Logger     logging.Logger
}

// Client is an authenticated OpenSPP XML-RPC client. Login happens on the
// first call.
type Client struct {
	cfg    Config
	common *xmlrpc.Client
	object *xmlrpc.Client
	log    logging.Logger

	mu  sync.Mutex
	uid int64
}

func NewClient(cfg Config) (*Client, error) {
	root := strings.TrimRight(cfg.ServerRoot, "/")
	if root == "" {
		return nil, errors.New("openspp server root is required")
	}
	if cfg.FetchLimit <= 0 {
		cfg.FetchLimit = 100
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Nop()
	}

	common, err := xmlrpc.NewClient(root+commonEndpoint, cfg.Transport)
	if err != nil {
		return nil, fmt.Errorf("failed to create common endpoint client: %w", err)
	}
	object, err := xmlrpc.NewClient(root+objectEndpoint, cfg.Transport)
	if err != nil {
		return nil, fmt.Errorf("failed to create object endpoint client: %w", err)
	}

	return &Client{cfg: cfg, common: common, object: object, log: cfg.Logger}, nil
}

// Close releases the underlying RPC clients.
func (c *Client) Close() error {
	return errors.Join(c.common.Close(), c.object.Close())
}

func call(ctx context.Context, client *xmlrpc.Client, method string, args []interface{}, reply interface{}) error {
	rpcCall := client.Go(method, args, reply, nil)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-rpcCall.Done:
	}

	// faults and bad statuses come back from net/rpc as ServerError strings
	var serverErr rpc.ServerError
	if errors.As(rpcCall.Error, &serverErr) {
		return fmt.Errorf("%w: remote server raised an error: %s", ErrAPI, string(serverErr))
	}
	return rpcCall.Error
}

// Login authenticates and caches the user id.
func (c *Client) Login(ctx context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.uid != 0 {
		return c.uid, nil
	}

	var reply interface{}
	args := []interface{}{c.cfg.Database, c.cfg.Username, c.cfg.Password, map[string]interface{}{}}
	if err := call(ctx, c.common, "authenticate", args, &reply); err != nil {
		return 0, fmt.Errorf("failed to authenticate: %w", err)
	}

	uid, ok := toInt64(reply)
	if !ok || uid == 0 {
		return 0, ErrAuthentication
	}
	c.uid = uid
	return uid, nil
}

// ExecuteKW runs model.method(*args, **kwargs) on the object endpoint.
func (c *Client) ExecuteKW(ctx context.Context, model, method string, args []interface{}, kwargs map[string]interface{}, reply interface{}) error {
	uid, err := c.Login(ctx)
	if err != nil {
		return err
	}
	if len(args) == 0 {
		args = []interface{}{[]interface{}{}}
	}
	if kwargs == nil {
		kwargs = map[string]interface{}{}
	}

	params := []interface{}{c.cfg.Database, uid, c.cfg.Password, model, method, args, kwargs}
	if err := call(ctx, c.object, "execute_kw", params, reply); err != nil {
		return fmt.Errorf("failed to execute %s.%s: %w", model, method, err)
	}
	return nil
}

// SearchCount counts records matching domain.
func (c *Client) SearchCount(ctx context.Context, model string, domain Domain) (int64, error) {
	var reply interface{}
	if err := c.ExecuteKW(ctx, model, "search_count", []interface{}{domainArg(domain)}, nil, &reply); err != nil {
		return 0, err
	}
	n, ok := toInt64(reply)
	if !ok {
		return 0, fmt.Errorf("%w: unexpected search_count reply %T", ErrAPI, reply)
	}
	return n, nil
}

// SearchRead fetches one page of records matching domain.
func (c *Client) SearchRead(ctx context.Context, model string, domain Domain, fields []string, limit, offset int) ([]Record, error) {
	kwargs := map[string]interface{}{"limit": limit, "offset": offset}
	if len(fields) > 0 {
		kwargs["fields"] = fields
	}

	var reply interface{}
	if err := c.ExecuteKW(ctx, model, "search_read", []interface{}{domainArg(domain)}, kwargs, &reply); err != nil {
		return nil, err
	}
	return toRecords(reply)
}

// FetchAll pages through every record matching domain, FetchLimit at a time.
func (c *Client) FetchAll(ctx context.Context, model string, domain Domain, fields []string) ([]Record, error) {
	total, err := c.SearchCount(ctx, model, domain)
	if err != nil {
		return nil, err
	}

	records := make([]Record, 0, total)
	for offset := 0; int64(offset) < total; offset += c.cfg.FetchLimit {
		page, err := c.SearchRead(ctx, model, domain, fields, c.cfg.FetchLimit, offset)
		if err != nil {
			return nil, err
		}
		records = append(records, page...)
		if len(page) < c.cfg.FetchLimit {
			break
		}
	}
	return records, nil
}

// Read fetches records by id. An empty result is an error.
func (c *Client) Read(ctx context.Context, model string, ids []int64, fields []string) ([]Record, error) {
	var kwargs map[string]interface{}
	if len(fields) > 0 {
		kwargs = map[string]interface{}{"fields": fields}
	}

	var reply interface{}
	if err := c.ExecuteKW(ctx, model, "read", []interface{}{ids}, kwargs, &reply); err != nil {
		return nil, err
	}
	records, err := toRecords(reply)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: records with IDs#%s do not exist", ErrAPI, joinIDs(ids))
	}
	return records, nil
}

// Write updates records and returns them re-read.
func (c *Client) Write(ctx context.Context, model string, ids []int64, data map[string]interface{}) ([]Record, error) {
	var reply interface{}
	if err := c.ExecuteKW(ctx, model, "write", []interface{}{ids, data}, nil, &reply); err != nil {
		return nil, err
	}
	if ok, _ := reply.(bool); !ok {
		return nil, fmt.Errorf("%w: updating data failed", ErrAPI)
	}
	return c.Read(ctx, model, ids, nil)
}

func domainArg(d Domain) []interface{} {
	if d == nil {
		return []interface{}{}
	}
	return d
}

func toRecords(reply interface{}) ([]Record, error) {
	if reply == nil {
		return []Record{}, nil
	}
	items, ok := reply.([]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: unexpected reply %T", ErrAPI, reply)
	}
	records := make([]Record, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("%w: unexpected record %T", ErrAPI, item)
		}
		records = append(records, Record(m))
	}
	return records, nil
}

func toInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}

func joinIDs(ids []int64) string {
	return strings.Join(lo.Map(ids, func(id int64, _ int) string {
		return fmt.Sprint(id)
	}), ", ")
}
