package supplier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/athebyme/gomarket-platform/catalog-sync-service/internal/utils"
	"github.com/athebyme/gomarket-platform/catalog-sync-service/pkg/interfaces"
)

const (
	listPath     = "/product/list"
	detailPath   = "/product/query"
	variantsPath = "/product/variant/query"
	stockPath    = "/product/stock/queryByVid"
	reviewsPath  = "/product/productComments"

	accessTokenHeader = "CJ-Access-Token"

	// код успешного ответа в теле
	codeOK      = 200
	maxBodySize = 8 << 20
)

// Options - параметры клиента API поставщика
type Options struct {
	BaseURL     string
	AccessToken string
	Timeout     time.Duration
	// ReviewsPageSize - размер страницы отзывов
	ReviewsPageSize int
}

// Client - HTTP клиент API поставщика
type Client struct {
	baseURL         string
	accessToken     string
	reviewsPageSize int
	httpClient      *http.Client
	logger          interfaces.LoggerPort
}

// NewClient создает клиент API поставщика
func NewClient(opts Options, logger interfaces.LoggerPort) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	pageSize := opts.ReviewsPageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	return &Client{
		baseURL:         strings.TrimRight(opts.BaseURL, "/"),
		accessToken:     opts.AccessToken,
		reviewsPageSize: pageSize,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// envelope - общая обертка ответов поставщика
type envelope struct {
	Code    int             `json:"code"`
	Result  *bool           `json:"result"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// ListCatalog запрашивает страницу листинга. Параметры передаются в query как есть.
func (c *Client) ListCatalog(ctx context.Context, params map[string]interface{}) (map[string]any, error) {
	query := url.Values{}
	for key, value := range params {
		if value == nil {
			continue
		}
		query.Set(key, fmt.Sprint(value))
	}
	return c.get(ctx, listPath, query)
}

func (c *Client) GetDetail(ctx context.Context, externalID string) (map[string]any, error) {
	return c.get(ctx, detailPath, url.Values{"pid": {externalID}})
}

func (c *Client) GetVariants(ctx context.Context, externalID string) (map[string]any, error) {
	return c.get(ctx, variantsPath, url.Values{"pid": {externalID}})
}

func (c *Client) GetStock(ctx context.Context, variantID string) (map[string]any, error) {
	return c.get(ctx, stockPath, url.Values{"vid": {variantID}})
}

func (c *Client) GetReviews(ctx context.Context, externalID string, page int) (map[string]any, error) {
	return c.get(ctx, reviewsPath, url.Values{
		"pid":      {externalID},
		"pageNum":  {strconv.Itoa(page)},
		"pageSize": {strconv.Itoa(c.reviewsPageSize)},
	})
}

func (c *Client) get(ctx context.Context, path string, query url.Values) (map[string]any, error) {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &utils.RemoteAPIError{Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	if c.accessToken != "" {
		req.Header.Set(accessTokenHeader, c.accessToken)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.ErrorWithContext(ctx, "Ошибка запроса к API поставщика",
			interfaces.LogField{Key: "path", Value: path},
			interfaces.LogField{Key: "error", Value: err.Error()},
		)
		return nil, &utils.RemoteAPIError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, &utils.RemoteAPIError{Status: resp.StatusCode, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	c.logger.DebugWithContext(ctx, "Ответ API поставщика",
		interfaces.LogField{Key: "path", Value: path},
		interfaces.LogField{Key: "status", Value: resp.StatusCode},
		interfaces.LogField{Key: "duration", Value: time.Since(start).String()},
	)

	if resp.StatusCode != http.StatusOK {
		apiErr := &utils.RemoteAPIError{Status: resp.StatusCode, Body: string(body)}
		var env envelope
		if json.Unmarshal(body, &env) == nil {
			apiErr.ProviderCode = env.Code
			apiErr.Message = env.Message
		}
		return nil, apiErr
	}

	return decodeBody(resp.StatusCode, body)
}

// decodeBody проверяет код в обертке и возвращает содержимое data.
// Массив оборачивается в {"list": ...}, чтобы нормализатор увидел его как листинг.
func decodeBody(status int, body []byte) (map[string]any, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, &utils.RemoteAPIError{Status: status, Body: string(body), Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	if (env.Result != nil && !*env.Result) || (env.Code != 0 && env.Code != codeOK) {
		return nil, &utils.RemoteAPIError{Status: status, ProviderCode: env.Code, Message: env.Message, Body: string(body)}
	}

	if len(env.Data) == 0 || bytes.Equal(env.Data, []byte("null")) {
		return map[string]any{}, nil
	}

	decoder := json.NewDecoder(bytes.NewReader(env.Data))
	decoder.UseNumber()
	var data any
	if err := decoder.Decode(&data); err != nil {
		return nil, &utils.RemoteAPIError{Status: status, Body: string(body), Err: fmt.Errorf("failed to decode data: %w", err)}
	}

	switch v := data.(type) {
	case map[string]any:
		return v, nil
	default:
		return map[string]any{"list": v}, nil
	}
}
