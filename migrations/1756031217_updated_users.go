package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

// Extends the builtin users auth collection with the push token and the
// per-customer completion history.
func init() {
	m.Register(func(app core.App) error {
		users, err := app.FindCollectionByNameOrId("users")
		if err != nil {
			return err
		}

		users.Fields.Add(&core.TextField{
			Name: "expo_push_token",
		})
		users.Fields.Add(&core.RelationField{
			Name:         "history",
			CollectionId: "pbc_4091854422",
			MaxSelect:    999,
		})

		return app.Save(users)
	}, func(app core.App) error {
		users, err := app.FindCollectionByNameOrId("users")
		if err != nil {
			return err
		}

		users.Fields.RemoveByName("expo_push_token")
		users.Fields.RemoveByName("history")

		return app.Save(users)
	})
}
