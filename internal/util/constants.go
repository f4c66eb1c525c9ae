package util

const (
	StorageLocal = "local"
	StorageMinio = "minio"
	StorageOSS   = "oss"
)

// Two isometric shaded-view matrices captured for telemetry. FRT shows the
// front, right and top faces; BLB the back, left and bottom faces.
var ViewMatrices = map[string]string{
	"FRT": "0.707,0.707,0,0,-0.408,0.408,0.816,0,0.577,-0.577,0.577,0",
	"BLB": "-0.707,-0.707,0,0,-0.408,0.408,0.816,0,-0.577,0.577,-0.577,0",
}
