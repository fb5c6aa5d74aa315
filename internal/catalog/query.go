package catalog

import "github.com/sokhunov/Distribution-Interface/internal/source"

// goodsQueryText selects the latest price agreement per product among tracked
// suppliers, skipping products already present in the warehouse.
const goodsQueryText = `SELECT
	Agreements.Номенклатура.Код AS Code,
	Agreements.Номенклатура.Наименование AS Name,
	Agreements.Контрагент.Код AS SupplierCode,
	Agreements.Контрагент.Наименование AS Supplier
FROM
	InformationRegister.СогласованиеЦен.SliceLast AS Agreements
		INNER JOIN (SELECT
			MAX(Latest.Период) AS Период,
			Latest.Номенклатура AS Номенклатура
		FROM
			InformationRegister.СогласованиеЦен.SliceLast AS Latest
		WHERE
			NOT Latest.Номенклатура.Код IN ({{.excluded}})
			AND Latest.Контрагент.Код IN ({{.suppliers}})
		GROUP BY
			Latest.Номенклатура) AS MaxDates
		ON Agreements.Номенклатура = MaxDates.Номенклатура
			AND Agreements.Период = MaxDates.Период
WHERE
	NOT Agreements.Номенклатура.Код IN ({{.excluded}})
	AND Agreements.Контрагент.Код IN ({{.suppliers}})
GROUP BY
	Agreements.Номенклатура.Наименование,
	Agreements.Номенклатура.Код,
	Agreements.Контрагент.Код,
	Agreements.Контрагент.Наименование`

// sourceGoods is one row of goodsQueryText.
type sourceGoods struct {
	Code         string `json:"Code"`
	Name         string `json:"Name"`
	SupplierCode string `json:"SupplierCode"`
	Supplier     string `json:"Supplier"`
}

func goodsQuery(suppliers, excluded []string) source.Query {
	return source.Query{
		Name: "distribution_goods",
		Text: goodsQueryText,
		Params: map[string]string{
			"suppliers": source.FormatCodeSet(suppliers),
			"excluded":  source.FormatCodeSet(excluded),
		},
	}
}
