package client

// Vector3 is a point or direction in 3D space.
type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Viewer describes the cone to query. FieldOfViewAngle is the full apex
// angle in degrees within [0, 360].
type Viewer struct {
	Position         Vector3 `json:"viewerPosition"`
	Direction        Vector3 `json:"viewerDirection"`
	FieldOfViewAngle float64 `json:"fieldOfViewAngle"`
}

// VisibleObject is one object inside the viewer's cone.
type VisibleObject struct {
	ID                 string  `json:"id"`
	TranslatedPosition Vector3 `json:"translatedPosition"`
	AngleFromViewer    float64 `json:"angleFromViewer"`
	DistanceFromViewer float64 `json:"distanceFromViewer"`
}

// Result is a successful query answer.
type Result struct {
	Objects   []VisibleObject
	ETag      string
	RequestID string
}

// ServiceStats mirrors the server's query counters.
type ServiceStats struct {
	Queries            int64 `json:"queries"`
	ValidationFailures int64 `json:"validationFailures"`
	StoreFailures      int64 `json:"storeFailures"`
	DegenerateRejects  int64 `json:"degenerateRejects"`
	Canceled           int64 `json:"canceled"`
	ObjectsScanned     int64 `json:"objectsScanned"`
	ObjectsReturned    int64 `json:"objectsReturned"`
	ObjectsSkipped     int64 `json:"objectsSkipped"`
	AverageLatencyNs   int64 `json:"averageLatencyNs"`
}

type Stats struct {
	Service        ServiceStats `json:"service"`
	OpenWebSockets int64        `json:"openWebSockets"`
	TrackedClients int          `json:"trackedClients"`
}

type visibleObjectsResponse struct {
	VisibleObjects []VisibleObject `json:"visibleObjects"`
}
