package onshape

import (
	"bytes"
	"cad_practice_backend/pkg/monitoring"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const (
	acceptJSON   = "application/vnd.onshape.v2+json;charset=UTF-8;qs=0.09"
	acceptBinary = "application/octet-stream;charset=UTF-8;qs=0.09"
	acceptGLTF   = "model/gltf-binary;qs=0.08"

	// thumbnailViewMatrix renders a slightly tilted isometric view for
	// question catalogue thumbnails
	thumbnailViewMatrix = "0.612,0.612,0,0,-0.354,0.354,0.707,0,0.707,-0.707,0.707,0"
)

// Client wraps the Onshape REST API. Enterprise users carry their own API
// domain; calls fall back to the configured base URL when the domain
// argument is empty.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *Client) endpoint(domain, path string) string {
	base := c.baseURL
	if domain != "" {
		base = domain
	}
	return base + path
}

func (c *Client) do(ctx context.Context, method, op, rawURL, token, accept string, body interface{}) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", accept)
	req.Header.Set("Authorization", "Bearer "+token)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	monitoring.VendorAPIDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("onshape: %s %s returned %d", method, req.URL.Path, resp.StatusCode)
	}
	return data, nil
}

// GetMassProperties fetches the mass properties of an element. wvm is one of
// "w", "v" or "m" with the matching workspace/version/microversion ID.
func (c *Client) GetMassProperties(ctx context.Context, token, domain, etype, did, wvm, wvmid, eid string, massAsGroup bool) (*MassProperties, error) {
	u := c.endpoint(domain, fmt.Sprintf("/api/%s/d/%s/%s/%s/e/%s/massproperties", etype, did, wvm, wvmid, eid))
	u += "?massAsGroup=" + strconv.FormatBool(massAsGroup)

	data, err := c.do(ctx, http.MethodGet, "mass_properties", u, token, acceptJSON, nil)
	if err != nil {
		return nil, err
	}
	var props MassProperties
	if err := json.Unmarshal(data, &props); err != nil {
		return nil, err
	}
	return &props, nil
}

// GetFeatureList fetches the feature list of a part studio.
func (c *Client) GetFeatureList(ctx context.Context, token, domain, etype, did, wvm, wvmid, eid string) (*FeatureList, error) {
	u := c.endpoint(domain, fmt.Sprintf("/api/%s/d/%s/%s/%s/e/%s/features", etype, did, wvm, wvmid, eid))

	data, err := c.do(ctx, http.MethodGet, "feature_list", u, token, acceptJSON, nil)
	if err != nil {
		return nil, err
	}
	var list FeatureList
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, err
	}
	list.Raw = data
	return &list, nil
}

// GetCurrentMicroversion returns the current microversion ID of a workspace.
func (c *Client) GetCurrentMicroversion(ctx context.Context, token, domain, did, wid string) (string, error) {
	u := c.endpoint(domain, fmt.Sprintf("/api/documents/d/%s/w/%s/currentmicroversion", did, wid))

	data, err := c.do(ctx, http.MethodGet, "current_microversion", u, token, acceptJSON, nil)
	if err != nil {
		return "", err
	}
	var body struct {
		Microversion string `json:"microversion"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return "", err
	}
	return body.Microversion, nil
}

// GetElements lists the elements of a document version. elementID narrows the
// result to a single element when non-empty.
func (c *Client) GetElements(ctx context.Context, token, did, vid, elementID string) ([]Element, error) {
	u := c.endpoint("", fmt.Sprintf("/api/documents/d/%s/v/%s/elements", did, vid))
	if elementID != "" {
		u += "?elementId=" + url.QueryEscape(elementID)
	}

	data, err := c.do(ctx, http.MethodGet, "elements", u, token, acceptJSON, nil)
	if err != nil {
		return nil, err
	}
	var elements []Element
	if err := json.Unmarshal(data, &elements); err != nil {
		return nil, err
	}
	return elements, nil
}

// InsertDerivedFeature imports the entire source part studio version into
// the target workspace part studio as one importDerived feature and returns
// the created feature's ID.
func (c *Client) InsertDerivedFeature(ctx context.Context, token, domain, did, wid, eid, srcDID, srcVID, srcEID, srcMID, featureName string) (string, error) {
	u := c.endpoint(domain, fmt.Sprintf("/api/partstudios/d/%s/w/%s/e/%s/features", did, wid, eid))

	payload := map[string]interface{}{
		"feature": map[string]interface{}{
			"btType": "BTMFeature-134",
			"name":   featureName,
			"parameters": []interface{}{
				map[string]interface{}{
					"btType": "BTMParameterQueryList-148",
					"queries": []interface{}{
						map[string]interface{}{
							"btType":         "BTMIndividualQuery-138",
							"queryStatement": nil,
							"queryString":    "query=qEverything(EntityType.BODY);",
						},
					},
					"parameterId": "parts",
				},
				map[string]interface{}{
					"btType":      "BTMParameterDerived-864",
					"parameterId": "buildFunction",
					"namespace":   fmt.Sprintf("d%s::v%s::e%s::m%s", srcDID, srcVID, srcEID, srcMID),
					"imports":     []interface{}{},
				},
			},
			"featureType": "importDerived",
		},
		"libraryVersion": 1746,
	}

	data, err := c.do(ctx, http.MethodPost, "insert_feature", u, token, acceptJSON, payload)
	if err != nil {
		return "", err
	}
	var body struct {
		Feature Feature `json:"feature"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return "", err
	}
	return body.Feature.FeatureID, nil
}

// CreateAssemblyInstances inserts all parts of a source part studio version
// into the target workspace assembly as instances.
func (c *Client) CreateAssemblyInstances(ctx context.Context, token, domain, did, wid, eid, srcDID, srcVID, srcEID string) error {
	u := c.endpoint(domain, fmt.Sprintf("/api/assemblies/d/%s/w/%s/e/%s/instances", did, wid, eid))

	payload := map[string]interface{}{
		"documentId":        srcDID,
		"versionId":         srcVID,
		"elementId":         srcEID,
		"isWholePartStudio": true,
	}
	_, err := c.do(ctx, http.MethodPost, "create_instances", u, token, acceptJSON, payload)
	return err
}

// GetAssemblyDefinition fetches an assembly's definition including its part
// instances, and mate features when requested.
func (c *Client) GetAssemblyDefinition(ctx context.Context, token, domain, did, wvm, wvmid, eid string, includeMateFeatures bool) (*AssemblyDefinition, error) {
	u := c.endpoint(domain, fmt.Sprintf("/api/assemblies/d/%s/%s/%s/e/%s", did, wvm, wvmid, eid))
	u += "?includeMateFeatures=" + strconv.FormatBool(includeMateFeatures) +
		"&includeMateConnectors=" + strconv.FormatBool(includeMateFeatures)

	data, err := c.do(ctx, http.MethodGet, "assembly_definition", u, token, acceptJSON, nil)
	if err != nil {
		return nil, err
	}
	var def AssemblyDefinition
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, err
	}
	def.Raw = data
	return &def, nil
}

// GetPartList lists the parts of a part studio with their names.
func (c *Client) GetPartList(ctx context.Context, token, domain, did, wvm, wvmid, eid string) ([]Part, error) {
	u := c.endpoint(domain, fmt.Sprintf("/api/parts/d/%s/%s/%s/e/%s", did, wvm, wvmid, eid))

	data, err := c.do(ctx, http.MethodGet, "part_list", u, token, acceptJSON, nil)
	if err != nil {
		return nil, err
	}
	var parts []Part
	if err := json.Unmarshal(data, &parts); err != nil {
		return nil, err
	}
	return parts, nil
}

// GetShadedView renders a shaded view of an element and returns the PNG
// bytes. viewMatrix is a 12-value comma-separated camera matrix.
func (c *Client) GetShadedView(ctx context.Context, token, domain, etype, did, wvm, wvmid, eid, viewMatrix string, height, width int) ([]byte, error) {
	u := c.endpoint(domain, fmt.Sprintf("/api/%s/d/%s/%s/%s/e/%s/shadedviews", etype, did, wvm, wvmid, eid))
	q := url.Values{}
	q.Set("viewMatrix", viewMatrix)
	q.Set("outputHeight", strconv.Itoa(height))
	q.Set("outputWidth", strconv.Itoa(width))
	q.Set("pixelSize", "0")
	u += "?" + q.Encode()

	data, err := c.do(ctx, http.MethodGet, "shaded_view", u, token, acceptJSON, nil)
	if err != nil {
		return nil, err
	}
	var body struct {
		Images []string `json:"images"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, err
	}
	if len(body.Images) == 0 {
		return nil, fmt.Errorf("onshape: shaded view response contains no images")
	}
	return base64.StdEncoding.DecodeString(body.Images[0])
}

// GetThumbnail renders a small isometric shaded view of a question element
// and returns it as a data URI for catalogue display.
func (c *Client) GetThumbnail(ctx context.Context, token, etype, did, vid, eid string) (string, error) {
	png, err := c.GetShadedView(ctx, token, "", etype, did, "v", vid, eid, thumbnailViewMatrix, 60, 60)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}

// GetBlobDrawing downloads a blob element (the JPEG export of a drawing)
// and returns it as a data URI for display while modelling.
func (c *Client) GetBlobDrawing(ctx context.Context, token, did, vid, eid string) (string, error) {
	u := c.endpoint("", fmt.Sprintf("/api/blobelements/d/%s/v/%s/e/%s", did, vid, eid))

	data, err := c.do(ctx, http.MethodGet, "blob_drawing", u, token, acceptBinary, nil)
	if err != nil {
		return "", err
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(data), nil
}

// GetGLTFMesh exports the mesh representation of a part studio microversion
// as binary glTF, stored as received.
func (c *Client) GetGLTFMesh(ctx context.Context, token, domain, did, mid, eid string) ([]byte, error) {
	u := c.endpoint(domain, fmt.Sprintf("/api/partstudios/d/%s/m/%s/e/%s/gltf", did, mid, eid))
	u += "?rollbackBarIndex=-1"

	return c.do(ctx, http.MethodGet, "gltf_mesh", u, token, acceptGLTF, nil)
}

// GetDocumentHistory returns up to 20 microversions of a document's history,
// starting from mid and walking backwards.
func (c *Client) GetDocumentHistory(ctx context.Context, token, domain, did, mid string) ([]DocumentHistoryEntry, error) {
	u := c.endpoint(domain, fmt.Sprintf("/api/documents/d/%s/m/%s/documenthistory", did, mid))

	data, err := c.do(ctx, http.MethodGet, "document_history", u, token, acceptJSON, nil)
	if err != nil {
		return nil, err
	}
	var history []DocumentHistoryEntry
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, err
	}
	return history, nil
}

// GetSessionInfo returns the identity of the token's user.
func (c *Client) GetSessionInfo(ctx context.Context, token, domain string) (*SessionInfo, error) {
	u := c.endpoint(domain, "/api/users/sessioninfo")

	data, err := c.do(ctx, http.MethodGet, "session_info", u, token, acceptJSON, nil)
	if err != nil {
		return nil, err
	}
	var info SessionInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, err
	}
	return &info, nil
}
