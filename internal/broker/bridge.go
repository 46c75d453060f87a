package broker

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"

	"ashare-trader/internal/config"
	"ashare-trader/internal/quote"
)

// Bridge 通过券商终端本地桥接服务实现 Gateway 与 quote.Source。
// 桥接服务返回 GBK 编码的行列表格：行以换行分隔，列以制表符分隔，首行为表头。
type Bridge struct {
	baseURL string
	account string
	client  *http.Client
	logger  *zap.Logger
}

var (
	_ Gateway      = (*Bridge)(nil)
	_ quote.Source = (*Bridge)(nil)
)

// NewBridge 创建桥接客户端。
func NewBridge(cfg config.BridgeConfig, logger *zap.Logger) *Bridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Bridge{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		account: cfg.Account,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// Open 建立终端会话。
func (b *Bridge) Open(ctx context.Context) error {
	_, err := b.call(ctx, "/session/open", url.Values{})
	if err != nil {
		return fmt.Errorf("打开终端会话失败: %w", err)
	}
	b.logger.Info("终端会话已建立", zap.String("account", b.account))
	return nil
}

// Close 关闭终端会话。
func (b *Bridge) Close(ctx context.Context) error {
	if _, err := b.call(ctx, "/session/close", url.Values{}); err != nil {
		return fmt.Errorf("关闭终端会话失败: %w", err)
	}
	return nil
}

// SubmitOrder 提交委托并返回券商委托编号。
func (b *Bridge) SubmitOrder(ctx context.Context, req SubmitRequest) (int, error) {
	params := url.Values{}
	params.Set("code", req.SecurityCode)
	params.Set("category", req.Category.String())
	params.Set("pricing", strconv.Itoa(int(req.Pricing)))
	params.Set("price", strconv.FormatFloat(req.Price, 'f', 3, 64))
	params.Set("volume", strconv.FormatInt(req.Volume, 10))

	table, err := b.call(ctx, "/order/submit", params)
	if err != nil {
		return 0, err
	}
	if len(table) == 0 {
		return 0, fmt.Errorf("委托提交响应为空")
	}

	orderNo, err := strconv.Atoi(table[0].get("委托编号"))
	if err != nil {
		return 0, fmt.Errorf("解析委托编号失败: %w", err)
	}
	return orderNo, nil
}

// CancelOrder 按委托编号撤单。
func (b *Bridge) CancelOrder(ctx context.Context, securityCode string, orderNo int) error {
	params := url.Values{}
	params.Set("code", securityCode)
	params.Set("order_no", strconv.Itoa(orderNo))

	_, err := b.call(ctx, "/order/cancel", params)
	return err
}

// QuerySubmittedOrders 查询当日全部委托。
func (b *Bridge) QuerySubmittedOrders(ctx context.Context) ([]OrderRecord, error) {
	table, err := b.call(ctx, "/order/today", url.Values{})
	if err != nil {
		return nil, err
	}

	records := make([]OrderRecord, 0, len(table))
	for _, row := range table {
		orderNo, convErr := strconv.Atoi(row.get("委托编号"))
		if convErr != nil {
			b.logger.Warn("委托记录缺少有效编号，跳过", zap.String("row", row.raw))
			continue
		}

		statusText := row.get("状态")
		record := OrderRecord{
			OrderNo:    orderNo,
			StatusText: statusText,
			Status:     ParseStatus(statusText),
			DealPrice:  parseFloat(row.get("成交均价")),
			DealVolume: parseInt(row.get("成交数量")),
		}
		records = append(records, record)
	}
	return records, nil
}

// QueryCapital 查询账户资金。
func (b *Bridge) QueryCapital(ctx context.Context) (Capital, error) {
	table, err := b.call(ctx, "/capital", url.Values{})
	if err != nil {
		return Capital{}, err
	}
	if len(table) == 0 {
		return Capital{}, fmt.Errorf("资金查询响应为空")
	}

	row := table[0]
	return Capital{
		Remaining:   parseFloat(row.get("资金余额")),
		Usable:      parseFloat(row.get("可用金额")),
		Frozen:      parseFloat(row.get("冻结金额")),
		Cashable:    parseFloat(row.get("可取金额")),
		TotalEquity: parseFloat(row.get("总资产")),
	}, nil
}

// QueryPositions 查询账户全部持仓。
func (b *Bridge) QueryPositions(ctx context.Context) ([]Position, error) {
	table, err := b.call(ctx, "/positions", url.Values{})
	if err != nil {
		return nil, err
	}

	positions := make([]Position, 0, len(table))
	for _, row := range table {
		code := row.get("证券代码")
		if code == "" {
			continue
		}
		positions = append(positions, Position{
			SecurityCode:    code,
			SecurityName:    row.get("证券名称"),
			Volume:          parseInt(row.get("证券数量")),
			AvailableVolume: parseInt(row.get("可卖数量")),
			CostPrice:       parseFloat(row.get("成本价")),
			CurrentPrice:    parseFloat(row.get("当前价")),
			MarketValue:     parseFloat(row.get("最新市值")),
		})
	}
	return positions, nil
}

// FetchQuotes 实现 quote.Source：按批量代码拉取五档行情。
// 结果与输入代码一一对应；缺失的代码以行情错误占位。
func (b *Bridge) FetchQuotes(ctx context.Context, codes []string) ([]quote.Result, error) {
	params := url.Values{}
	params.Set("codes", strings.Join(codes, ","))

	table, err := b.call(ctx, "/quotes", params)
	if err != nil {
		return nil, err
	}

	byCode := make(map[string]tableRow, len(table))
	for _, row := range table {
		byCode[row.get("证券代码")] = row
	}

	results := make([]quote.Result, 0, len(codes))
	for _, code := range codes {
		row, ok := byCode[code]
		if !ok {
			results = append(results, quote.Result{
				SecurityCode: code,
				Err:          fmt.Errorf("行情缺失: %s", code),
			})
			continue
		}
		results = append(results, quote.Result{
			SecurityCode: code,
			Quote:        rowToQuote(code, row),
		})
	}
	return results, nil
}

func rowToQuote(code string, row tableRow) *quote.FiveLevelQuote {
	q := &quote.FiveLevelQuote{
		SecurityCode:  code,
		SecurityName:  row.get("证券名称"),
		PreviousClose: parseFloat(row.get("昨收")),
		TodayOpen:     parseFloat(row.get("今开")),
		CurrentPrice:  parseFloat(row.get("现价")),
		DealVolume:    parseInt(row.get("成交量")),
		DealAmount:    parseFloat(row.get("成交额")),
		Timestamp:     time.Now(),
	}
	for i := 0; i < quote.DepthLevels; i++ {
		level := strconv.Itoa(i + 1)
		q.BuyPrices[i] = parseFloat(row.get("买" + level + "价"))
		q.BuyVolumes[i] = parseInt(row.get("买" + level + "量"))
		q.SellPrices[i] = parseFloat(row.get("卖" + level + "价"))
		q.SellVolumes[i] = parseInt(row.get("卖" + level + "量"))
	}
	return q
}

// tableRow 将一行数据与表头绑定。
type tableRow struct {
	columns map[string]string
	raw     string
}

func (r tableRow) get(column string) string {
	return strings.TrimSpace(r.columns[column])
}

// call 发送表单请求并解析表格响应。非 2xx 响应视为网关拒绝。
func (b *Bridge) call(ctx context.Context, path string, params url.Values) ([]tableRow, error) {
	if b.account != "" {
		params.Set("account", b.account)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+path, strings.NewReader(params.Encode()))
	if err != nil {
		return nil, fmt.Errorf("构造桥接请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("桥接请求失败: %w", err)
	}
	defer resp.Body.Close()

	body, err := decodeGBK(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("解码桥接响应失败: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("桥接请求被拒绝 (%d): %s", resp.StatusCode, strings.TrimSpace(body))
	}

	return parseTable(body), nil
}

// decodeGBK 将终端返回的 GBK 字节流转为 UTF-8 文本。
func decodeGBK(r io.Reader) (string, error) {
	decoded, err := io.ReadAll(transform.NewReader(r, simplifiedchinese.GBK.NewDecoder()))
	if err != nil {
		return "", err
	}
	return string(decoded), nil
}

// parseTable 解析换行分隔行、制表符分隔列的表格文本，首行为表头。
func parseTable(body string) []tableRow {
	lines := strings.Split(strings.ReplaceAll(body, "\r\n", "\n"), "\n")

	var header []string
	rows := make([]tableRow, 0, len(lines))
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if header == nil {
			header = make([]string, len(fields))
			for i, field := range fields {
				header[i] = strings.TrimSpace(field)
			}
			continue
		}

		columns := make(map[string]string, len(header))
		for i, field := range fields {
			if i < len(header) {
				columns[header[i]] = field
			}
		}
		rows = append(rows, tableRow{columns: columns, raw: line})
	}
	return rows
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}

func parseInt(s string) int64 {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0
	}
	return v
}
