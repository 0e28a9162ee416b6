package model

import "fmt"

// Вид уборки.
type ServiceType string

const (
	ServiceTypeRegular      ServiceType = "regular"
	ServiceTypeDeep         ServiceType = "deep"
	ServiceTypeMoveInOut    ServiceType = "move_in_out"
	ServiceTypeBusiness     ServiceType = "business"
	ServiceTypeConstruction ServiceType = "construction"
)

// ServiceTypes — все известные виды в порядке отображения.
var ServiceTypes = []ServiceType{
	ServiceTypeRegular,
	ServiceTypeDeep,
	ServiceTypeMoveInOut,
	ServiceTypeBusiness,
	ServiceTypeConstruction,
}

func ParseServiceType(v string) (ServiceType, error) {
	for _, st := range ServiceTypes {
		if string(st) == v {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown service type %q", v)
}
