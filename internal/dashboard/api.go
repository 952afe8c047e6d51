package dashboard

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/teesmad/findmyspot/internal/remote"
	"github.com/teesmad/findmyspot/internal/spot"
	"github.com/teesmad/findmyspot/internal/spotsync"
)

// spotRequest is the body of POST and PUT /api/spots. Pointers mark the
// numeric fields required without rejecting zero.
type spotRequest struct {
	ID           string   `json:"id"`
	Name         string   `json:"name" binding:"required"`
	Latitude     *float64 `json:"latitude" binding:"required"`
	Longitude    *float64 `json:"longitude" binding:"required"`
	Availability string   `json:"availability"`
	PricePerHour *float64 `json:"price_per_hour" binding:"required"`
	ImageBase64  string   `json:"image_base64"`
}

func (r spotRequest) toSpot() spot.ParkingSpot {
	s := spot.New(r.Name, *r.Latitude, *r.Longitude, r.Availability, *r.PricePerHour, r.ImageBase64)
	if r.ID != "" {
		s.ID = r.ID
	}
	return s
}

func (s *Server) routes(m *httpMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLog(s.logger), m.instrument(), principal(s.identity))

	r.GET("/", s.handleRoot)
	r.GET("/health", s.handleHealth)
	r.GET("/ws", gin.WrapF(s.handleWebSocket))
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))

	api := r.Group("/api")
	api.GET("/spots", s.listSpots)
	api.GET("/spots/:id", s.getSpot)
	api.POST("/spots", s.createSpot)
	api.PUT("/spots/:id", s.updateSpot)
	api.DELETE("/spots/:id", s.deleteSpot)
	api.POST("/resync", s.resync)

	return r
}

func (s *Server) handleHealth(c *gin.Context) {
	st := s.syncer.Stats()
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"state":   st.State.String(),
		"spots":   st.Spots,
		"version": st.Version,
		"clients": s.ClientCount(),
	})
}

// listSpots returns the snapshot. With lat and lon it returns spots
// ordered by distance, limited to radius_km when given.
func (s *Server) listSpots(c *gin.Context) {
	reg := s.syncer.Registry()
	snap := reg.Snapshot()

	latStr, lonStr := c.Query("lat"), c.Query("lon")
	if latStr == "" && lonStr == "" {
		c.JSON(http.StatusOK, gin.H{"version": snap.Version, "spots": snap.Spots})
		return
	}

	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "lat must be a number"})
		return
	}
	lon, err := strconv.ParseFloat(lonStr, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "lon must be a number"})
		return
	}
	var radius float64
	if v := c.Query("radius_km"); v != "" {
		if radius, err = strconv.ParseFloat(v, 64); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "radius_km must be a number"})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"version": snap.Version, "spots": reg.Nearby(lat, lon, radius)})
}

func (s *Server) getSpot(c *gin.Context) {
	sp, ok := s.syncer.Registry().Lookup(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "spot not found"})
		return
	}
	c.JSON(http.StatusOK, sp)
}

func (s *Server) createSpot(c *gin.Context) {
	var req spotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sp := req.toSpot()
	if err := s.syncer.Add(c.Request.Context(), sp); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.Header("Location", "/api/spots/"+sp.ID)
	c.JSON(http.StatusCreated, sp)
}

func (s *Server) updateSpot(c *gin.Context) {
	var req spotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id := c.Param("id")
	if req.ID != "" && req.ID != id {
		c.JSON(http.StatusBadRequest, gin.H{"error": "body id does not match path"})
		return
	}
	req.ID = id

	sp := req.toSpot()
	if err := s.syncer.Update(c.Request.Context(), sp); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, sp)
}

func (s *Server) deleteSpot(c *gin.Context) {
	if err := s.syncer.Delete(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) resync(c *gin.Context) {
	if err := s.syncer.Resync(c.Request.Context()); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, s.syncer.Stats())
}

// statusFor maps engine errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, spot.ErrInvalid):
		return http.StatusBadRequest
	case errors.Is(err, spotsync.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, spotsync.ErrNotStarted), errors.Is(err, remote.ErrRemoteUnavailable) && !errors.Is(err, remote.ErrRemoteWriteFailed):
		return http.StatusServiceUnavailable
	case errors.Is(err, remote.ErrRemoteWriteFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleRoot(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(indexHTML))
}

const indexHTML = `<!DOCTYPE html>
<html>
<head>
    <title>findmyspot</title>
    <style>
        body { font-family: sans-serif; margin: 2em; }
        table { border-collapse: collapse; }
        td, th { border: 1px solid #ccc; padding: 4px 8px; }
        #status { color: #666; }
    </style>
</head>
<body>
    <h1>Parking spots</h1>
    <p id="status">connecting...</p>
    <table>
        <thead><tr><th>Name</th><th>Availability</th><th>Price/h</th><th>Lat</th><th>Lon</th></tr></thead>
        <tbody id="spots"></tbody>
    </table>
    <script>
        const ws = new WebSocket((location.protocol === 'https:' ? 'wss://' : 'ws://') + location.host + '/ws');
        let version = 0;
        const esc = (v) => String(v).replace(/[&<>"]/g, c => ({'&': '&amp;', '<': '&lt;', '>': '&gt;', '"': '&quot;'}[c]));
        ws.onmessage = (ev) => {
            const msg = JSON.parse(ev.data);
            if (msg.type === 'state') {
                document.getElementById('status').textContent = 'state: ' + msg.data.state;
                return;
            }
            if (msg.type !== 'snapshot' || msg.version < version) return;
            version = msg.version;
            const rows = (msg.data || []).map(s =>
                '<tr><td>' + esc(s.name) + '</td><td>' + esc(s.availability) + '</td><td>' + s.price_per_hour +
                '</td><td>' + s.latitude + '</td><td>' + s.longitude + '</td></tr>');
            document.getElementById('spots').innerHTML = rows.join('');
            document.getElementById('status').textContent = 'version ' + version + ', ' + rows.length + ' spots';
        };
        ws.onclose = () => { document.getElementById('status').textContent = 'disconnected'; };
    </script>
</body>
</html>`
