// Package redis provides the RediSearch engine driver over rueidis.
//
// Each index is an FT index ON HASH; records are stored as hashes under
// "<prefix>:<index>:<id>" and queried with FT.SEARCH ... LIMIT offset limit.
package redis

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/redis/rueidis"
	"go.uber.org/zap"

	"github.com/hyperjump/sokuin/internal/config"
	"github.com/hyperjump/sokuin/internal/engine"
	"github.com/hyperjump/sokuin/internal/models"
)

// Driver is the registry name of this engine.
const Driver = "redis"

const defaultPrefix = "sokuin"

// Engine is a RediSearch connection.
type Engine struct {
	client rueidis.Client
	prefix string
	logger *zap.Logger

	mu      sync.Mutex
	indexes map[string]*Index
}

// New connects to the addresses in cfg.Redis.
func New(cfg config.EngineConfig, logger *zap.Logger) (*Engine, error) {
	if len(cfg.Redis.Addrs) == 0 {
		return nil, fmt.Errorf("redis addrs is required")
	}
	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  cfg.Redis.Addrs,
		Username:     cfg.Redis.Username,
		Password:     cfg.Redis.Password,
		SelectDB:     cfg.Redis.DB,
		DisableCache: true,
		AlwaysRESP2:  true, // FT.SEARCH result parsing expects RESP2 array format
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
	return newEngine(client, cfg.Redis.Prefix, logger), nil
}

// Factory adapts New to engine.Factory.
func Factory(cfg config.EngineConfig, logger *zap.Logger) (engine.Engine, error) {
	return New(cfg, logger)
}

func newEngine(client rueidis.Client, prefix string, logger *zap.Logger) *Engine {
	if prefix == "" {
		prefix = defaultPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{client: client, prefix: prefix, logger: logger, indexes: make(map[string]*Index)}
}

func (e *Engine) Driver() string { return Driver }

// Index returns the named index, creating the FT index on first use.
func (e *Engine) Index(ctx context.Context, name string) (engine.Index, error) {
	if name == "" {
		return nil, fmt.Errorf("index name is required")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if idx, ok := e.indexes[name]; ok {
		return idx, nil
	}
	idx := &Index{
		client:    e.client,
		name:      name,
		ftName:    e.prefix + ":idx:" + name,
		keyPrefix: e.prefix + ":" + name + ":",
		logger:    e.logger,
	}
	if err := idx.create(ctx); err != nil {
		return nil, err
	}
	e.indexes[name] = idx
	return idx, nil
}

// Close shuts down the client.
func (e *Engine) Close() error {
	e.client.Close()
	return nil
}

// Index is one FT index.
type Index struct {
	client    rueidis.Client
	name      string
	ftName    string
	keyPrefix string
	logger    *zap.Logger
}

func (i *Index) Name() string { return i.name }

func (i *Index) createArgs() []string {
	return []string{
		i.ftName, "ON", "HASH",
		"PREFIX", "1", i.keyPrefix,
		"SCHEMA",
		"title", "TEXT",
		"content", "TEXT",
		"source", "TAG",
	}
}

func (i *Index) create(ctx context.Context) error {
	cmd := i.client.B().Arbitrary("FT.CREATE").Args(i.createArgs()...).Build()
	if err := i.client.Do(ctx, cmd).Error(); err != nil {
		if isRedisErr(err, "index already exists") {
			return nil
		}
		return engine.Wrap(Driver, engine.OpOpen, fmt.Errorf("FT.CREATE %s: %w", i.ftName, err))
	}
	i.logger.Info("RediSearch index created", zap.String("index", i.ftName))
	return nil
}

func (i *Index) key(id int64) string {
	return i.keyPrefix + strconv.FormatInt(id, 10)
}

// Search runs FT.SEARCH with the escaped term. An empty term matches everything.
func (i *Index) Search(ctx context.Context, term string, opts models.SearchOptions) (*models.SearchResponse, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("redis search: %w", err)
	}
	queryStr, err := buildQuery(term, opts.Filters)
	if err != nil {
		return nil, err
	}
	args := []string{i.ftName, queryStr, "LIMIT", strconv.Itoa(opts.Offset), strconv.Itoa(opts.Limit), "DIALECT", "2"}

	cmd := i.client.B().Arbitrary("FT.SEARCH").Args(args...).Build()
	raw, err := i.client.Do(ctx, cmd).ToArray()
	if err != nil {
		return nil, engine.Wrap(Driver, engine.OpSearch, err)
	}
	resp, err := i.parseListResult(raw)
	if err != nil {
		return nil, engine.Wrap(Driver, engine.OpSearch, err)
	}
	return resp, nil
}

// Upsert stores every record as a hash in a single DoMulti round-trip.
func (i *Index) Upsert(ctx context.Context, records []*models.Record) error {
	if len(records) == 0 {
		return nil
	}
	cmds := make([]rueidis.Completed, len(records))
	for n, r := range records {
		cmd := i.client.B().Hset().Key(i.key(r.ID)).FieldValue()
		for _, f := range hashFields(r) {
			cmd = cmd.FieldValue(f[0], f[1])
		}
		cmds[n] = cmd.Build()
	}
	for n, res := range i.client.DoMulti(ctx, cmds...) {
		if err := res.Error(); err != nil {
			return engine.Wrap(Driver, engine.OpUpsert, fmt.Errorf("key %s: %w", i.key(records[n].ID), err))
		}
	}
	return nil
}

func (i *Index) Delete(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, len(ids))
	for n, id := range ids {
		keys[n] = i.key(id)
	}
	cmd := i.client.B().Del().Key(keys...).Build()
	if err := i.client.Do(ctx, cmd).Error(); err != nil {
		return engine.Wrap(Driver, engine.OpDelete, err)
	}
	return nil
}

// Flush drops the index with its documents (FT.DROPINDEX DD) and recreates it.
func (i *Index) Flush(ctx context.Context) error {
	cmd := i.client.B().Arbitrary("FT.DROPINDEX").Args(i.ftName, "DD").Build()
	if err := i.client.Do(ctx, cmd).Error(); err != nil && !isRedisErr(err, "unknown index name") {
		return engine.Wrap(Driver, engine.OpFlush, err)
	}
	if err := i.create(ctx); err != nil {
		return engine.Wrap(Driver, engine.OpFlush, err)
	}
	return nil
}

// hashFields returns the field/value pairs stored for r, core fields first and
// metadata in key order.
func hashFields(r *models.Record) [][2]string {
	fields := [][2]string{
		{"id", r.Key()},
		{"title", r.Title},
		{"content", r.Content},
		{"source", r.Source},
	}
	keys := make([]string, 0, len(r.Metadata))
	for k := range r.Metadata {
		switch k {
		case "id", "title", "content", "source":
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fields = append(fields, [2]string{k, fmt.Sprint(r.Metadata[k])})
	}
	return fields
}

func buildQuery(term string, filters map[string]string) (string, error) {
	var parts []string
	names := make([]string, 0, len(filters))
	for f := range filters {
		names = append(names, f)
	}
	sort.Strings(names)
	for _, f := range names {
		switch f {
		case "source":
			parts = append(parts, fmt.Sprintf("@%s:{%s}", f, tagEscaper.Replace(filters[f])))
		case "title", "content":
			parts = append(parts, fmt.Sprintf("@%s:(%s)", f, escapeQuery(filters[f])))
		default:
			return "", fmt.Errorf("redis search: %w: field %q is not filterable", engine.ErrUnsupportedFilter, f)
		}
	}
	if t := strings.TrimSpace(term); t != "" && t != "*" {
		parts = append(parts, escapeQuery(t))
	}
	if len(parts) == 0 {
		return "*", nil
	}
	return strings.Join(parts, " "), nil
}

func (i *Index) parseListResult(raw []rueidis.RedisMessage) (*models.SearchResponse, error) {
	resp := &models.SearchResponse{Hits: []models.Hit{}}
	if len(raw) == 0 {
		return resp, nil
	}
	total, err := raw[0].AsInt64()
	if err != nil {
		return nil, fmt.Errorf("parse total: %w", err)
	}
	resp.TotalHits = int(total)

	// 2-stride: [total, key1, fields1, key2, fields2, ...]
	for n := 1; n+1 < len(raw); n += 2 {
		key, err := raw[n].ToString()
		if err != nil {
			continue
		}
		id, err := strconv.ParseInt(strings.TrimPrefix(key, i.keyPrefix), 10, 64)
		if err != nil {
			i.logger.Warn("skipping RediSearch document with foreign key", zap.String("key", key))
			continue
		}
		fields, err := raw[n+1].ToArray()
		if err != nil {
			continue
		}
		resp.Hits = append(resp.Hits, models.Hit{ID: id, Fields: parseFieldPairs(fields)})
	}
	return resp, nil
}

func parseFieldPairs(fields []rueidis.RedisMessage) map[string]any {
	m := make(map[string]any, len(fields)/2)
	for j := 0; j+1 < len(fields); j += 2 {
		name, err := fields[j].ToString()
		if err != nil {
			continue
		}
		value, err := fields[j+1].ToString()
		if err != nil {
			continue
		}
		m[name] = value
	}
	return m
}

// isRedisErr checks if err is a Redis server error containing substr (case-insensitive).
func isRedisErr(err error, substr string) bool {
	re, ok := rueidis.IsRedisErr(err)
	if !ok {
		return false
	}
	return strings.Contains(strings.ToLower(re.Error()), strings.ToLower(substr))
}

func escapeQuery(s string) string {
	return queryEscaper.Replace(s)
}

var queryEscaper = strings.NewReplacer(
	`\`, `\\`,
	`'`, `\'`,
	`"`, `\"`,
	`@`, `\@`,
	`{`, `\{`,
	`}`, `\}`,
	`(`, `\(`,
	`)`, `\)`,
	`|`, `\|`,
	`-`, `\-`,
	`~`, `\~`,
	`*`, `\*`,
	`[`, `\[`,
	`]`, `\]`,
	`!`, `\!`,
	`%`, `\%`,
	`^`, `\^`,
	`$`, `\$`,
	`<`, `\<`,
	`>`, `\>`,
	`=`, `\=`,
	`;`, `\;`,
	`+`, `\+`,
	`:`, `\:`,
)

var tagEscaper = strings.NewReplacer(
	",", "\\,",
	".", "\\.",
	"<", "\\<",
	">", "\\>",
	"{", "\\{",
	"}", "\\}",
	"\"", "\\\"",
	"'", "\\'",
	":", "\\:",
	";", "\\;",
	"!", "\\!",
	"@", "\\@",
	"#", "\\#",
	"$", "\\$",
	"%", "\\%",
	"^", "\\^",
	"&", "\\&",
	"*", "\\*",
	"(", "\\(",
	")", "\\)",
	"-", "\\-",
	"+", "\\+",
	"=", "\\=",
	"~", "\\~",
	" ", "\\ ",
)
