package interpreter

// MarkerState describes one tracked marker.
type MarkerState struct {
	ID        string  `json:"id"`
	Lng       float64 `json:"lng"`
	Lat       float64 `json:"lat"`
	Visible   bool    `json:"visible"`
	HasPopup  bool    `json:"hasPopup"`
	PopupOpen bool    `json:"popupOpen"`
}

// Snapshot is the observable state of a map after replay.
type Snapshot struct {
	ID         string        `json:"id"`
	Live       bool          `json:"live"`
	Zoom       float64       `json:"zoom"`
	Center     LngLat        `json:"center"`
	Style      any           `json:"style,omitempty"`
	Markers    []MarkerState `json:"markers"`
	FitPending bool          `json:"fitPending"`
}

// Snapshot captures the map's current state.
func (m *DynamicMap) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Snapshot{
		ID:         m.ID,
		Live:       m.live != nil,
		Markers:    make([]MarkerState, 0, len(m.markers)),
		FitPending: m.pendingFit != nil,
	}
	if m.live != nil {
		s.Zoom = m.live.Zoom()
		s.Center = m.live.Center()
		s.Style = m.live.Style()
	}
	for _, id := range sortedKeys(m.markers) {
		marker := m.markers[id]
		pos := marker.LngLat()
		st := MarkerState{ID: id, Lng: pos.Lng, Lat: pos.Lat, Visible: marker.OnMap()}
		if popup, ok := m.popups[id]; ok {
			st.HasPopup = true
			st.PopupOpen = popup.IsOpen()
		}
		s.Markers = append(s.Markers, st)
	}
	return s
}
