package commerce

const (
	operationCreateClient  = "create_client"
	operationCreateProduct = "create_product"
	operationUpdateProduct = "update_product"
	operationDeleteProduct = "delete_product"
	operationCreateShop    = "create_shop"
	operationAddOrder      = "add_order"
	operationCreateCredit  = "create_credit"

	operationStatusOK    = "ok"
	operationStatusError = "error"

	// ShopStatusCompleted is the status assigned to a recorded sale.
	ShopStatusCompleted = "completed"
)
