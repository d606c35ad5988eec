package model

// Category describes a filing category. Credit card receipts are filed
// in the month following the receipt date.
type Category struct {
	// Key is the stable identifier used in CLI input and the store.
	Key string

	// Folder is the directory name used inside the archive tree.
	Folder string

	// CreditCard shifts the filing month by one when true.
	CreditCard bool
}

// Categories is the fixed filing category table.
var Categories = []Category{
	{Key: "1", Folder: "Kassa"},
	{Key: "2", Folder: "ER"},
	{Key: "3", Folder: "ER-KKJK", CreditCard: true},
	{Key: "4", Folder: "ER-KKCB", CreditCard: true},
}

// CategoryByKey looks up a category by its key.
func CategoryByKey(key string) (Category, bool) {
	for _, c := range Categories {
		if c.Key == key {
			return c, true
		}
	}
	return Category{}, false
}
