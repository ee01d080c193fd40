package browser

// CSS selectors for the portal pages. Kept in one place because these are the
// first thing to break when the site changes.
const (
	selLoginUsername = "#Email"
	selLoginPassword = "#Password"
	selLoginSubmit   = "button[type='submit']"
	selLicenseAccept = "#btnAccept"

	selInventoryGrid   = "#inventoryGrid"
	selFilterInput     = "input[aria-describedby='inventoryGrid_StockNumber']"
	selFilterMenu      = "th[data-field='StockNumber'] .k-grid-filter"
	selFilterApply     = "button[type='submit'].k-button-solid-primary"
	selFilterClear     = "button[type='reset']"
	selGridFirstRow    = "#inventoryGrid tbody tr:first-child"
	selGridEmptyRow    = "#inventoryGrid .k-grid-norecords"
	selExportButton    = "#btnExportInventory"
	selVehicleBookout  = "a[href*='Bookout']"
	selBookoutPDFIcon  = "#btnPrintPdf"
	selBookoutBackLink = "a[href*='/Inventory']"

	selLogout = "a[href*='LogOff']"
)
