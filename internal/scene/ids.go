package scene

import "fmt"

// ObjectID is the stable logical identifier of an interactable prop or zone.
// Ids are assigned at compile time; the string forms are only used at the
// configuration and wire boundaries.
type ObjectID uint8

const (
	NoObject ObjectID = iota

	// kit
	FoleyPack
	EmptyPack
	SalineSyringe
	Lubricant
	Swab1
	Swab2
	Swab3
	Povidone
	UrineBag
	Catheter
	SterileGloves
	FullDrape
	FenestratedDrape

	// deployed
	OpenGloves
	DeployedFullDrape
	DeployedFenestratedDrape
	DeployedLubricant
	CatheterDeflated
	CatheterInflated
	CatheterNoSyringe
	UrineStage

	// combined
	CatheterSyringe
	CatheterAssembly

	// environment
	Table
	PatientUpper
	PatientLower
	DeliveryBed
	Trashcan
	FullDrapeZone
	FenestratedDrapeZone
	CleaningZone
	LubricationZone
	InsertionZone
	InsertionMarker

	objectIDCount
)

var objectNames = [objectIDCount]string{
	NoObject:                 "",
	FoleyPack:                "foleyPack",
	EmptyPack:                "emptyPack",
	SalineSyringe:            "syringe",
	Lubricant:                "lubricant",
	Swab1:                    "swab1",
	Swab2:                    "swab2",
	Swab3:                    "swab3",
	Povidone:                 "povidone",
	UrineBag:                 "urineBag",
	Catheter:                 "catheter",
	SterileGloves:            "sterileGloves",
	FullDrape:                "fullDrape",
	FenestratedDrape:         "fenestratedDrape",
	OpenGloves:               "openGloves",
	DeployedFullDrape:        "deployedFullDrape",
	DeployedFenestratedDrape: "deployedFenestratedDrape",
	DeployedLubricant:        "deployedLubricant",
	CatheterDeflated:         "catheterDeflated",
	CatheterInflated:         "catheterInflated",
	CatheterNoSyringe:        "catheterNoSyringe",
	UrineStage:               "urineStage",
	CatheterSyringe:          "catheterSyringe",
	CatheterAssembly:         "catheterAssembly",
	Table:                    "table",
	PatientUpper:             "patientUpper",
	PatientLower:             "patientLower",
	DeliveryBed:              "deliveryBed",
	Trashcan:                 "trashcan",
	FullDrapeZone:            "fullDrapeZone",
	FenestratedDrapeZone:     "fenestratedDrapeZone",
	CleaningZone:             "cleaningZone",
	LubricationZone:          "lubricationZone",
	InsertionZone:            "insertionZone",
	InsertionMarker:          "insertionMarker",
}

var objectsByName = func() map[string]ObjectID {
	m := make(map[string]ObjectID, objectIDCount)
	for id := ObjectID(1); id < objectIDCount; id++ {
		m[objectNames[id]] = id
	}
	return m
}()

// String returns the configuration name of the id.
func (id ObjectID) String() string {
	if id >= objectIDCount {
		return fmt.Sprintf("object(%d)", uint8(id))
	}
	return objectNames[id]
}

// Valid reports whether id names a known object.
func (id ObjectID) Valid() bool {
	return id > NoObject && id < objectIDCount
}

// ParseObjectID resolves a configuration name to its id.
func ParseObjectID(name string) (ObjectID, error) {
	if id, ok := objectsByName[name]; ok {
		return id, nil
	}
	return NoObject, fmt.Errorf("unknown object id: %q", name)
}

// MarshalText implements encoding.TextMarshaler.
func (id ObjectID) MarshalText() ([]byte, error) {
	if !id.Valid() {
		return nil, fmt.Errorf("invalid object id: %d", uint8(id))
	}
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler, so ids decode directly
// from YAML and JSON.
func (id *ObjectID) UnmarshalText(text []byte) error {
	parsed, err := ParseObjectID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// AllObjectIDs returns every valid id in declaration order.
func AllObjectIDs() []ObjectID {
	ids := make([]ObjectID, 0, objectIDCount-1)
	for id := ObjectID(1); id < objectIDCount; id++ {
		ids = append(ids, id)
	}
	return ids
}
