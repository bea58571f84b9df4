package parser

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/yourorg/exchange-aggregator/internal/model"
)

func testCatalog() *model.Catalog {
	return &model.Catalog{
		Cash: []model.CatalogEntry{
			{CityID: 10, CityCode: "MSK", DirectionID: 1, FromCode: "BTC", ToCode: "CASHRUB"},
			{CityID: 11, CityCode: "SPB", DirectionID: 1, FromCode: "BTC", ToCode: "CASHRUB"},
		},
		NonCash: []model.CatalogEntry{
			{DirectionID: 2, FromCode: "BTC", ToCode: "USDTTRC20"},
		},
	}
}

func TestParseCashMultiCity(t *testing.T) {
	body := `<rates>
		<item>
			<from>BTC</from><to>CASHRUB</to>
			<city>msk, spb</city>
			<in>1</in><out>6500000</out>
			<minamount>0.001 BTC</minamount><maxamount>2 BTC</maxamount>
			<param>Delivery</param>
		</item>
	</rates>`

	p := NewParser(zap.NewNop())
	res, err := p.Parse(body, testCatalog())
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}

	if len(res.Cash) != 2 {
		t.Fatalf("got %d cash offers, want 2", len(res.Cash))
	}
	if len(res.NonCash) != 0 {
		t.Fatalf("got %d non-cash offers, want 0", len(res.NonCash))
	}

	cities := []int{res.Cash[0].CityID, res.Cash[1].CityID}
	if diff := cmp.Diff([]int{10, 11}, cities); diff != "" {
		t.Errorf("city IDs mismatch (-want +got):\n%s", diff)
	}
	for _, offer := range res.Cash {
		if offer.DirectionID != 1 {
			t.Errorf("direction = %d, want 1", offer.DirectionID)
		}
		if offer.Params == nil || *offer.Params != "Delivery" {
			t.Errorf("params = %v, want Delivery", offer.Params)
		}
	}
}

func TestParseNonCashItem(t *testing.T) {
	body := `<rates>
		<item>
			<from>BTC</from><to>USDTTRC20</to>
			<in>1</in><out>65000</out>
			<minAmount>0.01 BTC</minAmount><maxAmount>5 BTC</maxAmount>
		</item>
	</rates>`

	p := NewParser(zap.NewNop())
	res, err := p.Parse(body, testCatalog())
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}

	if len(res.NonCash) != 1 {
		t.Fatalf("got %d non-cash offers, want 1", len(res.NonCash))
	}
	offer := res.NonCash[0]
	if offer.DirectionID != 2 {
		t.Errorf("direction = %d, want 2", offer.DirectionID)
	}
	if offer.CityID != 0 {
		t.Errorf("city = %d, want 0", offer.CityID)
	}
	if !offer.Out.Equal(decimal.NewFromInt(65000)) {
		t.Errorf("out = %s, want 65000", offer.Out)
	}
	if offer.MinAmount != "0.01 BTC" {
		t.Errorf("min amount = %q, want %q", offer.MinAmount, "0.01 BTC")
	}
}

func TestParseCashFeeApplied(t *testing.T) {
	body := `<rates>
		<item>
			<from>BTC</from><to>CASHRUB</to><city>MSK</city>
			<in>1</in><out>100</out>
			<minamount>1 BTC</minamount><maxamount>2 BTC</maxamount>
			<fromfee>5%</fromfee>
		</item>
	</rates>`

	p := NewParser(zap.NewNop())
	res, err := p.Parse(body, testCatalog())
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if len(res.Cash) != 1 {
		t.Fatalf("got %d cash offers, want 1", len(res.Cash))
	}
	if !res.Cash[0].Out.Equal(decimal.NewFromInt(95)) {
		t.Errorf("out = %s, want 95", res.Cash[0].Out)
	}
}

func TestParseSkipsItemsOutsideCatalog(t *testing.T) {
	body := `<rates>
		<item>
			<from>ETH</from><to>CASHRUB</to><city>MSK</city>
			<in>1</in><out>300000</out>
			<minamount>1 ETH</minamount><maxamount>10 ETH</maxamount>
		</item>
		<item>
			<from>BTC</from><to>CASHRUB</to><city>KZN</city>
			<in>1</in><out>6500000</out>
			<minamount>1 BTC</minamount><maxamount>2 BTC</maxamount>
		</item>
	</rates>`

	p := NewParser(zap.NewNop())
	res, err := p.Parse(body, testCatalog())
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if len(res.Cash)+len(res.NonCash) != 0 {
		t.Errorf("got %d offers, want 0", len(res.Cash)+len(res.NonCash))
	}
}

func TestParseSkipsMalformedItems(t *testing.T) {
	body := `<rates>
		<item>
			<from>BTC</from><to>CASHRUB</to><city>MSK</city>
			<in>abc</in><out>6500000</out>
			<minamount>1 BTC</minamount><maxamount>2 BTC</maxamount>
		</item>
		<item>
			<from>BTC</from><to>CASHRUB</to><city>SPB</city>
			<in>1</in><out>6500000</out>
			<minamount>no number</minamount><maxamount>2 BTC</maxamount>
		</item>
		<item>
			<from>BTC</from><to>USDTTRC20</to>
			<in>1</in><out>65000</out>
			<minAmount>0.01 BTC</minAmount><maxAmount>5 BTC</maxAmount>
		</item>
	</rates>`

	p := NewParser(zap.NewNop())
	res, err := p.Parse(body, testCatalog())
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if len(res.Cash) != 0 {
		t.Errorf("got %d cash offers, want 0", len(res.Cash))
	}
	if len(res.NonCash) != 1 {
		t.Errorf("got %d non-cash offers, want 1", len(res.NonCash))
	}
}

func TestParseDeduplicatesItems(t *testing.T) {
	body := `<rates>
		<item>
			<from>BTC</from><to>USDTTRC20</to>
			<in>1</in><out>65000</out>
			<minAmount>0.01 BTC</minAmount><maxAmount>5 BTC</maxAmount>
		</item>
		<item>
			<from>BTC</from><to>USDTTRC20</to>
			<in>1</in><out>64000</out>
			<minAmount>0.01 BTC</minAmount><maxAmount>5 BTC</maxAmount>
		</item>
	</rates>`

	p := NewParser(zap.NewNop())
	res, err := p.Parse(body, testCatalog())
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if len(res.NonCash) != 1 {
		t.Fatalf("got %d non-cash offers, want 1", len(res.NonCash))
	}
	// First occurrence wins
	if !res.NonCash[0].Out.Equal(decimal.NewFromInt(65000)) {
		t.Errorf("out = %s, want 65000", res.NonCash[0].Out)
	}
}

func TestParseTruncatedFeedKeepsExtracted(t *testing.T) {
	body := `<rates>
		<item>
			<from>BTC</from><to>USDTTRC20</to>
			<in>1</in><out>65000</out>
			<minAmount>0.01 BTC</minAmount><maxAmount>5 BTC</maxAmount>
		</item>
		<item><from>BTC`

	p := NewParser(zap.NewNop())
	res, err := p.Parse(body, testCatalog())
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if len(res.NonCash) != 1 {
		t.Errorf("got %d non-cash offers, want 1", len(res.NonCash))
	}
}
