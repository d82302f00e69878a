package catalog

import (
	"fmt"

	"github.com/roach88/epsync/internal/ir"
)

// APIVersion selects the catalog REST API generation.
type APIVersion int

const (
	V1 APIVersion = 1
	V2 APIVersion = 2
)

func (v APIVersion) String() string {
	return fmt.Sprintf("v%d", int(v))
}

// ParseAPIVersion converts "v1" or "v2" to an APIVersion.
func ParseAPIVersion(s string) (APIVersion, error) {
	switch s {
	case "v1", "1":
		return V1, nil
	case "v2", "2", "":
		return V2, nil
	default:
		return 0, fmt.Errorf("unknown API version %q", s)
	}
}

// route describes where an entity type lives in one API version.
type route struct {
	path        string // collection path
	parentField string // JSON field holding the parent ID
	parentQuery string // query parameter filtering by parent
}

var routes = map[APIVersion]map[ir.EntityType]route{
	V1: {
		ir.TypeApplicationDomain: {path: "/api/v1/eventPortal/applicationDomains"},
		ir.TypeEnum:              {path: "/api/v1/eventPortal/enums"},
		ir.TypeSchema:            {path: "/api/v1/eventPortal/schemas", parentField: "applicationDomainId", parentQuery: "applicationDomainId"},
		ir.TypeEvent:             {path: "/api/v1/eventPortal/events", parentField: "applicationDomainId", parentQuery: "applicationDomainId"},
		ir.TypeApplication:       {path: "/api/v1/eventPortal/applications", parentField: "applicationDomainId", parentQuery: "applicationDomainId"},
	},
	V2: {
		ir.TypeApplicationDomain:  {path: "/api/v2/architecture/applicationDomains"},
		ir.TypeEnum:               {path: "/api/v2/architecture/enums", parentField: "applicationDomainId", parentQuery: "applicationDomainId"},
		ir.TypeEnumVersion:        {path: "/api/v2/architecture/enumVersions", parentField: "enumId", parentQuery: "enumIds"},
		ir.TypeSchema:             {path: "/api/v2/architecture/schemas", parentField: "applicationDomainId", parentQuery: "applicationDomainId"},
		ir.TypeSchemaVersion:      {path: "/api/v2/architecture/schemaVersions", parentField: "schemaId", parentQuery: "schemaIds"},
		ir.TypeEvent:              {path: "/api/v2/architecture/events", parentField: "applicationDomainId", parentQuery: "applicationDomainId"},
		ir.TypeEventVersion:       {path: "/api/v2/architecture/eventVersions", parentField: "eventId", parentQuery: "eventIds"},
		ir.TypeApplication:        {path: "/api/v2/architecture/applications", parentField: "applicationDomainId", parentQuery: "applicationDomainId"},
		ir.TypeApplicationVersion: {path: "/api/v2/architecture/applicationVersions", parentField: "applicationId", parentQuery: "applicationIds"},
		ir.TypeEventAPI:           {path: "/api/v2/architecture/eventApis", parentField: "applicationDomainId", parentQuery: "applicationDomainId"},
		ir.TypeEventAPIVersion:    {path: "/api/v2/architecture/eventApiVersions", parentField: "eventApiId", parentQuery: "eventApiIds"},
	},
}

// Fields the REST client maps onto Snapshot rather than Settings.
var identityFields = []string{"id", "name", "version"}
