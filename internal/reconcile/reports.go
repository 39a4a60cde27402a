package reconcile

// Operation names one entry point of the Engine.
type Operation string

const (
	OpCheck         Operation = "check"
	OpSyncMissing   Operation = "sync_missing"
	OpStockOnly     Operation = "stock_only"
	OpAllFields     Operation = "all_fields"
	OpComprehensive Operation = "comprehensive"
	OpBulkUpload    Operation = "bulk_upload"
)

// Operations lists every operation that can be triggered remotely. Bulk upload needs a
// payload and is excluded.
var Operations = []Operation{OpCheck, OpSyncMissing, OpStockOnly, OpAllFields, OpComprehensive}

// Valid reports whether op is one of the known operations.
func (op Operation) Valid() bool {
	if op == OpBulkUpload {
		return true
	}
	for _, known := range Operations {
		if op == known {
			return true
		}
	}
	return false
}

// MissingProduct is a remote product that has no local row yet.
type MissingProduct struct {
	ExternalID string `json:"externalId"`
	Name       string `json:"name"`
	SKU        string `json:"sku"`
	Price      int64  `json:"price"`
}

type CheckReport struct {
	LocalCount   int              `json:"localCount"`
	RemoteCount  int              `json:"remoteCount"`
	MissingCount int              `json:"missingCount"`
	Missing      []MissingProduct `json:"missingList"`
	Warnings     []string         `json:"warnings,omitempty"`
}

type SyncReport struct {
	ToolProducts    int      `json:"toolProducts"`
	WooProducts     int      `json:"wooProducts"`
	MissingProducts int      `json:"missingProducts"`
	NewlyAdded      int      `json:"newlyAdded"`
	Errors          []string `json:"errors"`
}

type SyncStats struct {
	TotalWooProducts  int `json:"totalWooProducts"`
	TotalToolProducts int `json:"totalToolProducts"`
	NewProductsAdded  int `json:"newProductsAdded"`
	ProductsUpdated   int `json:"productsUpdated"`
	ProductsDeleted   int `json:"productsDeleted"`
	Errors            int `json:"errors"`
}

type ComprehensiveSyncResult struct {
	Success  bool      `json:"success"`
	Message  string    `json:"message"`
	Stats    SyncStats `json:"stats"`
	Errors   []string  `json:"errors"`
	Warnings []string  `json:"warnings"`
}

// StockStats counts rows by stock flag.
type StockStats struct {
	InStock    int `json:"inStock"`
	OutOfStock int `json:"outOfStock"`
}

type StockUpdateResult struct {
	Success     bool       `json:"success"`
	Message     string     `json:"message"`
	BeforeStats StockStats `json:"beforeStats"`
	AfterStats  StockStats `json:"afterStats"`
	Updated     int        `json:"updated"`
	Errors      []string   `json:"errors"`
}

type FieldUpdateResult struct {
	Success bool     `json:"success"`
	Message string   `json:"message"`
	Updated int      `json:"updated"`
	Skipped int      `json:"skipped"`
	Errors  []string `json:"errors"`
}

type BulkUploadResult struct {
	Success  bool     `json:"success"`
	Message  string   `json:"message"`
	Total    int      `json:"total"`
	Uploaded int      `json:"uploaded"`
	Failed   int      `json:"failed"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings,omitempty"`
}

// Progress is reported while an operation runs.
type Progress struct {
	Operation Operation `json:"operation"`
	Phase     string    `json:"phase"`
	Done      int       `json:"done"`
	Total     int       `json:"total"`
}
