package ledger

import (
	"github.com/shopspring/decimal"

	"github.com/sokhunov/Distribution-Interface/internal/source"
)

// salesQueryText aggregates daily sales turnovers of the given goods codes per
// branch and customer.
const salesQueryText = `SELECT
	Sales.ПодразделениеКомпании.Наименование AS Shop,
	BEGINOFPERIOD(Sales.Период, DAY) AS Date_,
	Sales.Номенклатура.Код AS Code,
	Sales.Номенклатура.Наименование AS Name,
	SUM(Sales.КоличествоОборот) AS Qty,
	SUM(Sales.СуммаОборот) AS Turnover,
	SUM(Sales.СуммаОборот - Sales.СуммаНДСОборот) AS Turnover_wo_vat,
	SUM(Sales.СебестоимостьУпрОборот - Sales.СуммаНДСВходящийОборот) AS COGS,
	Sales.Покупатель.Наименование AS Customer,
	Sales.Покупатель.Код AS CustomerCode
FROM
	AccumulationRegister.Продажи.Turnovers({{.begin}}, {{.end}}, Day, Номенклатура.Код IN ({{.codes}})) AS Sales
GROUP BY
	Sales.Номенклатура.Код,
	Sales.Номенклатура.Наименование,
	BEGINOFPERIOD(Sales.Период, DAY),
	Sales.ПодразделениеКомпании.Наименование,
	Sales.Покупатель.Наименование,
	Sales.Покупатель.Код
ORDER BY
	Date_`

type sourceSale struct {
	Shop            string           `json:"Shop"`
	Date            source.Timestamp `json:"Date_"`
	Code            string           `json:"Code"`
	Name            string           `json:"Name"`
	Qty             decimal.Decimal  `json:"Qty"`
	Turnover        decimal.Decimal  `json:"Turnover"`
	TurnoverExclVAT decimal.Decimal  `json:"Turnover_wo_vat"`
	COGS            decimal.Decimal  `json:"COGS"`
	Customer        string           `json:"Customer"`
	CustomerCode    string           `json:"CustomerCode"`
}

func salesQuery(begin, end string, codes []string) source.Query {
	return source.Query{
		Name: "distribution_sales",
		Text: salesQueryText,
		Params: map[string]string{
			"begin": begin,
			"end":   end,
			"codes": source.FormatCodeSet(codes),
		},
	}
}
