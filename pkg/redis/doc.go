// Package redis connects to the Redis instance shared by the read cache, the
// in-app broadcast relay and the asynq retry queue.
//
//	client, err := redis.Connect(ctx, cfg, log)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	opt, err := redis.AsynqOpt(cfg)
package redis
