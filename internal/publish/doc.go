// Package publish uploads finished items to the destination channel and
// scans what is already there.
//
// YouTube uploads use the Data API's resumable protocol in fixed-size
// chunks. Server errors are retried with exponential backoff; other client
// errors are not. The daily upload limit surfaces as *QuotaError, which
// matches services.ErrQuotaExhausted so the batch can stop cleanly.
package publish
