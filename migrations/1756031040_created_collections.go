package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		jsonData := `[
			{
				"id": "pbc_2769025244",
				"name": "shops",
				"type": "base",
				"system": false,
				"fields": [
					{
						"name": "name",
						"type": "text",
						"required": true,
						"presentable": true,
						"min": 0,
						"max": 0,
						"pattern": ""
					},
					{
						"name": "is_open",
						"type": "bool",
						"required": false
					},
					{
						"name": "services",
						"type": "json",
						"required": false,
						"maxSize": 2000000
					},
					{
						"name": "total_services_completed",
						"type": "number",
						"required": false,
						"onlyInt": true
					},
					{
						"name": "total_revenue",
						"type": "number",
						"required": false,
						"onlyInt": false
					},
					{
						"name": "created",
						"type": "autodate",
						"onCreate": true,
						"onUpdate": false
					},
					{
						"name": "updated",
						"type": "autodate",
						"onCreate": true,
						"onUpdate": true
					}
				],
				"indexes": [],
				"listRule": "",
				"viewRule": "",
				"createRule": null,
				"updateRule": null,
				"deleteRule": null
			},
			{
				"id": "pbc_1687431684",
				"name": "barbers",
				"type": "base",
				"system": false,
				"fields": [
					{
						"name": "name",
						"type": "text",
						"required": true,
						"presentable": true,
						"min": 0,
						"max": 0,
						"pattern": ""
					},
					{
						"name": "shop",
						"type": "relation",
						"required": false,
						"collectionId": "pbc_2769025244",
						"cascadeDelete": false,
						"maxSelect": 1
					},
					{
						"name": "expo_push_token",
						"type": "text",
						"required": false,
						"min": 0,
						"max": 0,
						"pattern": ""
					},
					{
						"name": "customers_served",
						"type": "number",
						"required": false,
						"onlyInt": true
					},
					{
						"name": "history",
						"type": "relation",
						"required": false,
						"collectionId": "pbc_4091854422",
						"cascadeDelete": false,
						"maxSelect": 999
					},
					{
						"name": "created",
						"type": "autodate",
						"onCreate": true,
						"onUpdate": false
					},
					{
						"name": "updated",
						"type": "autodate",
						"onCreate": true,
						"onUpdate": true
					}
				],
				"indexes": [],
				"listRule": "",
				"viewRule": "",
				"createRule": null,
				"updateRule": null,
				"deleteRule": null
			},
			{
				"id": "pbc_3142635823",
				"name": "queues",
				"type": "base",
				"system": false,
				"fields": [
					{
						"name": "shop",
						"type": "relation",
						"required": true,
						"collectionId": "pbc_2769025244",
						"cascadeDelete": false,
						"maxSelect": 1
					},
					{
						"name": "barber",
						"type": "relation",
						"required": false,
						"collectionId": "pbc_1687431684",
						"cascadeDelete": false,
						"maxSelect": 1
					},
					{
						"name": "user",
						"type": "relation",
						"required": false,
						"collectionId": "_pb_users_auth_",
						"cascadeDelete": false,
						"maxSelect": 1
					},
					{
						"name": "customer_name",
						"type": "text",
						"required": false,
						"min": 0,
						"max": 0,
						"pattern": ""
					},
					{
						"name": "customer_phone",
						"type": "text",
						"required": false,
						"min": 0,
						"max": 0,
						"pattern": ""
					},
					{
						"name": "services",
						"type": "json",
						"required": false,
						"maxSize": 2000000
					},
					{
						"name": "position",
						"type": "number",
						"required": false,
						"onlyInt": true
					},
					{
						"name": "unique_code",
						"type": "text",
						"required": true,
						"min": 0,
						"max": 0,
						"pattern": ""
					},
					{
						"name": "total_cost",
						"type": "number",
						"required": false,
						"onlyInt": false
					},
					{
						"name": "status",
						"type": "select",
						"required": true,
						"maxSelect": 1,
						"values": [
							"pending",
							"in-progress",
							"completed",
							"cancelled"
						]
					},
					{
						"name": "created",
						"type": "autodate",
						"onCreate": true,
						"onUpdate": false
					},
					{
						"name": "updated",
						"type": "autodate",
						"onCreate": true,
						"onUpdate": true
					}
				],
				"indexes": [
					"CREATE UNIQUE INDEX idx_queues_unique_code ON queues (unique_code)",
					"CREATE INDEX idx_queues_shop_status ON queues (shop, status)"
				],
				"listRule": "",
				"viewRule": "",
				"createRule": null,
				"updateRule": null,
				"deleteRule": null
			},
			{
				"id": "pbc_4091854422",
				"name": "history",
				"type": "base",
				"system": false,
				"fields": [
					{
						"name": "user",
						"type": "relation",
						"required": false,
						"collectionId": "_pb_users_auth_",
						"cascadeDelete": false,
						"maxSelect": 1
					},
					{
						"name": "customer_name",
						"type": "text",
						"required": false,
						"min": 0,
						"max": 0,
						"pattern": ""
					},
					{
						"name": "barber",
						"type": "relation",
						"required": false,
						"collectionId": "pbc_1687431684",
						"cascadeDelete": false,
						"maxSelect": 1
					},
					{
						"name": "shop",
						"type": "relation",
						"required": false,
						"collectionId": "pbc_2769025244",
						"cascadeDelete": false,
						"maxSelect": 1
					},
					{
						"name": "services",
						"type": "json",
						"required": false,
						"maxSize": 2000000
					},
					{
						"name": "total_cost",
						"type": "number",
						"required": false,
						"onlyInt": false
					},
					{
						"name": "date",
						"type": "date",
						"required": false
					},
					{
						"name": "unique_code",
						"type": "text",
						"required": false,
						"min": 0,
						"max": 0,
						"pattern": ""
					},
					{
						"name": "position",
						"type": "number",
						"required": false,
						"onlyInt": true
					},
					{
						"name": "is_rated",
						"type": "bool",
						"required": false
					},
					{
						"name": "rating",
						"type": "number",
						"required": false,
						"onlyInt": true
					},
					{
						"name": "created",
						"type": "autodate",
						"onCreate": true,
						"onUpdate": false
					},
					{
						"name": "updated",
						"type": "autodate",
						"onCreate": true,
						"onUpdate": true
					}
				],
				"indexes": [],
				"listRule": "",
				"viewRule": "",
				"createRule": null,
				"updateRule": null,
				"deleteRule": null
			}
		]`

		return app.ImportCollectionsByMarshaledJSON([]byte(jsonData), false)
	}, func(app core.App) error {
		for _, name := range []string{"queues", "history", "barbers", "shops"} {
			collection, err := app.FindCollectionByNameOrId(name)
			if err != nil {
				continue
			}
			if err := app.Delete(collection); err != nil {
				return err
			}
		}
		return nil
	})
}
