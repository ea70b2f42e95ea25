package price

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Smooother/poolheating/pkg/api/v1/types"
)

var httpClient = &http.Client{
	Timeout: time.Second * 30,
}

// Feed fetches spot prices for a bidding zone from the cloud.
type Feed struct {
	Server string
	Token  func() string
}

func (f *Feed) Fetch(ctx context.Context, zone types.BiddingZone, start, end time.Time) ([]Point, error) {
	u := fmt.Sprintf("%s/api/controller/prices-v1?zone=%s&start=%s&end=%s",
		f.Server,
		zone,
		start.UTC().Format(time.RFC3339),
		end.UTC().Format(time.RFC3339),
	)
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Add("Authorization", f.Token())

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("error fetching prices StatusCode: %d", resp.StatusCode)
	}

	var points []Point
	err = json.NewDecoder(resp.Body).Decode(&points)
	if err != nil {
		return nil, err
	}
	return Normalize(points), nil
}
