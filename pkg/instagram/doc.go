// Package instagram provides a client for Instagram's web API that serves
// follower counts and follower lists to a collection run.
//
// The client authenticates with a browser session (sessionid and csrftoken
// cookies), maps HTTP status codes onto failure kinds, and spaces its
// requests through an optional rate limiter.
//
// Example usage:
//
//	client := instagram.NewClient(instagram.Options{
//	    SessionID: sessionID,
//	    CSRFToken: csrfToken,
//	    Timeout:   30 * time.Second,
//	}, log)
//
//	followers, err := client.ListEntities(ctx, "username")
//	if err != nil {
//	    return err
//	}
//	for _, f := range followers {
//	    count, err := client.GetMetric(ctx, f.String())
//	    if errors.KindOf(err) == errors.KindPermanent {
//	        // the profile is gone or private
//	    }
//	}
package instagram
