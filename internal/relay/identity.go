package relay

import "github.com/matst80/unirelay/internal/httpx"

// CarrierHost is the host presented to the carrier and the fallback upstream host.
const CarrierHost = "wo.10010.com"

// Identity is the collaborator identity header bundle stamped onto every forwarded request.
// Its values replace any client supplied value under the same key.
var Identity = httpx.Headers{
	{Name: "Host", Value: CarrierHost},
	{Name: "User-Agent", Value: "UNICOM/android 8.0102"},
	{Name: "X-Online-Host", Value: CarrierHost},
	{Name: "Connection", Value: "keep-alive"},
	{Name: "Accept", Value: "*/*"},
}
