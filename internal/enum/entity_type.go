package enum

type EntityType string

const (
	ACCOUNT        EntityType = "ACCOUNT"
	DOMAIN         EntityType = "DOMAIN"
	DELIVERY_EVENT EntityType = "DELIVERY_EVENT"
	AB_TEST        EntityType = "AB_TEST"
	ALERT          EntityType = "ALERT"
)

func (entityType EntityType) String() string {
	return string(entityType)
}

func GetEntityType(s string) EntityType {
	return EntityType(s)
}
