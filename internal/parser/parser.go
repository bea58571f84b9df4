// Package parser extracts ready offers from exchanger XML feeds. Feeds
// are streamed one <item> element at a time so a large feed never
// materializes as a full DOM.
package parser

import (
	"encoding/xml"
	"io"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/yourorg/exchange-aggregator/internal/model"
)

// feedItem mirrors one <item> element. Feeds disagree on the casing of
// the amount bounds, so both spellings are mapped.
type feedItem struct {
	From         string `xml:"from"`
	To           string `xml:"to"`
	City         string `xml:"city"`
	In           string `xml:"in"`
	Out          string `xml:"out"`
	MinAmount    string `xml:"minamount"`
	MinAmountAlt string `xml:"minAmount"`
	MaxAmount    string `xml:"maxamount"`
	MaxAmountAlt string `xml:"maxAmount"`
	FromFee      string `xml:"fromfee"`
	Param        string `xml:"param"`
}

// Result holds the offers extracted from one feed, split by segment
type Result struct {
	Cash    []model.RawOffer
	NonCash []model.RawOffer
}

// Parser maps feed items to catalog directions
type Parser struct {
	logger *zap.Logger
}

// NewParser creates a feed parser
func NewParser(logger *zap.Logger) *Parser {
	return &Parser{logger: logger}
}

// Parse streams the feed body and returns offers for every item whose
// (city, pair) or (pair) is present in the catalog. Malformed items are
// skipped individually; they never fail the whole feed.
func (p *Parser) Parse(body string, catalog *model.Catalog) (*Result, error) {
	cashIdx := catalog.CashIndex()
	nonCashIdx := catalog.NonCashIndex()

	res := &Result{}
	seenCash := make(map[[2]int]bool)
	seenNonCash := make(map[int]bool)

	dec := xml.NewDecoder(strings.NewReader(body))
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			// A syntax error mid-stream keeps whatever was already
			// extracted; the exchanger is retried next cycle.
			p.logger.Warn("Feed body truncated or malformed", zap.Error(err))
			break
		}

		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "item" {
			continue
		}

		var item feedItem
		if err := dec.DecodeElement(&item, &start); err != nil {
			p.logger.Debug("Skipping malformed feed item", zap.Error(err))
			continue
		}

		if item.From == "" || item.To == "" {
			continue
		}

		if item.City == "" {
			p.parseNonCashItem(&item, nonCashIdx, seenNonCash, res)
			continue
		}

		// A comma-separated city list repeats the item per city
		for _, city := range strings.Split(strings.ToUpper(item.City), ",") {
			p.parseCashItem(&item, strings.TrimSpace(city), cashIdx, seenCash, res)
		}
	}

	return res, nil
}

func (p *Parser) parseCashItem(
	item *feedItem,
	city string,
	idx map[string]map[[2]string]model.CatalogEntry,
	seen map[[2]int]bool,
	res *Result,
) {
	pairs, ok := idx[city]
	if !ok {
		return
	}
	entry, ok := pairs[[2]string{item.From, item.To}]
	if !ok {
		return
	}

	key := [2]int{entry.DirectionID, entry.CityID}
	if seen[key] {
		return
	}

	offer, err := p.buildOffer(item, entry, true)
	if err != nil {
		p.logger.Debug("Skipping invalid cash item",
			zap.String("city", city),
			zap.String("from", item.From),
			zap.String("to", item.To),
			zap.Error(err))
		return
	}

	seen[key] = true
	res.Cash = append(res.Cash, *offer)
}

func (p *Parser) parseNonCashItem(
	item *feedItem,
	idx map[[2]string]model.CatalogEntry,
	seen map[int]bool,
	res *Result,
) {
	entry, ok := idx[[2]string{item.From, item.To}]
	if !ok {
		return
	}
	if seen[entry.DirectionID] {
		return
	}

	offer, err := p.buildOffer(item, entry, false)
	if err != nil {
		p.logger.Debug("Skipping invalid non-cash item",
			zap.String("from", item.From),
			zap.String("to", item.To),
			zap.Error(err))
		return
	}

	seen[entry.DirectionID] = true
	res.NonCash = append(res.NonCash, *offer)
}

type itemError string

func (e itemError) Error() string { return string(e) }

func (p *Parser) buildOffer(item *feedItem, entry model.CatalogEntry, cash bool) (*model.RawOffer, error) {
	minAmount := firstNonEmpty(item.MinAmount, item.MinAmountAlt)
	maxAmount := firstNonEmpty(item.MaxAmount, item.MaxAmountAlt)
	if !validAmountBound(minAmount) || !validAmountBound(maxAmount) {
		return nil, itemError("missing or invalid amount bounds")
	}

	in, err := decimal.NewFromString(strings.TrimSpace(item.In))
	if err != nil {
		return nil, itemError("unparsable in value")
	}
	out, err := decimal.NewFromString(strings.TrimSpace(item.Out))
	if err != nil {
		return nil, itemError("unparsable out value")
	}

	var fee *decimal.Decimal
	if cash && item.FromFee != "" {
		if f, ok := parseFeePercent(item.FromFee); ok {
			fee = &f
		}
	}

	in, out, err = NormalizeRate(in, out, fee)
	if err != nil {
		return nil, err
	}

	offer := &model.RawOffer{
		DirectionID: entry.DirectionID,
		FromCode:    entry.FromCode,
		ToCode:      entry.ToCode,
		In:          in,
		Out:         out,
		MinAmount:   strings.TrimSpace(minAmount),
		MaxAmount:   strings.TrimSpace(maxAmount),
		Fee:         fee,
	}
	if cash {
		offer.CityID = entry.CityID
		offer.CityCode = entry.CityCode
		if param := strings.TrimSpace(item.Param); param != "" {
			offer.Params = &param
		}
	}
	return offer, nil
}

// parseFeePercent reads fee values like "5%" or "1.5"
func parseFeePercent(raw string) (decimal.Decimal, bool) {
	raw = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(raw), "%"))
	f, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, false
	}
	return f, true
}

// validAmountBound accepts bounds like "50 USD" or "5000": the leading
// token must parse as a positive number.
func validAmountBound(raw string) bool {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return false
	}
	v, err := strconv.ParseFloat(fields[0], 64)
	return err == nil && v > 0
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
